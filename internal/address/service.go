// Package address manages shipping addresses and keeps exactly one default
// address per user once the user has any address at all.
package address

import (
	"context"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/safar/storefront-checkout/internal/apperr"
	"github.com/safar/storefront-checkout/internal/config"
	"github.com/safar/storefront-checkout/internal/database"
	"github.com/safar/storefront-checkout/internal/models"
	"github.com/safar/storefront-checkout/internal/store"
)

type NewAddress struct {
	Address    string
	City       string
	Department string
	Country    string
	IsDefault  bool
}

type Service struct {
	db        *sqlx.DB
	forbidden bool
}

// NewService builds the address service. ownershipPolicy selects the error
// returned when an address exists but belongs to someone else: not_found
// (the default) hides its existence, forbidden reveals it. The policy is
// applied to every operation alike.
func NewService(db *sqlx.DB, ownershipPolicy string) *Service {
	return &Service{
		db:        db,
		forbidden: ownershipPolicy == config.OwnershipForbidden,
	}
}

func (s *Service) List(ctx context.Context, userID int64) ([]models.Address, error) {
	const op = "address.List"

	if userID <= 0 {
		return nil, apperr.Validation(op, "user id must be a positive integer")
	}

	addresses, err := store.ListAddresses(ctx, s.db, userID)
	if err != nil {
		return nil, s.internal(op, err, userID, 0)
	}

	return addresses, nil
}

func (s *Service) Get(ctx context.Context, id, userID int64) (*models.Address, error) {
	const op = "address.Get"

	if err := validateIDs(op, id, userID); err != nil {
		return nil, err
	}

	address, err := store.GetAddress(ctx, s.db, id, userID)
	if err != nil {
		if errors.Is(err, database.ErrAddressNotFound) {
			return nil, s.notOwned(ctx, s.db, op, id, userID)
		}
		return nil, s.internal(op, err, userID, id)
	}

	return address, nil
}

// GetDefault returns nil without error when the user has no default address.
func (s *Service) GetDefault(ctx context.Context, userID int64) (*models.Address, error) {
	const op = "address.GetDefault"

	if userID <= 0 {
		return nil, apperr.Validation(op, "user id must be a positive integer")
	}

	address, err := store.GetDefaultAddress(ctx, s.db, userID)
	if err != nil {
		return nil, s.internal(op, err, userID, 0)
	}

	return address, nil
}

// Create inserts the address and, when it is the user's first address or the
// caller asked for it, makes it the default in the same transaction.
func (s *Service) Create(ctx context.Context, userID int64, in NewAddress) (*models.Address, error) {
	const op = "address.Create"

	if userID <= 0 {
		return nil, apperr.Validation(op, "user id must be a positive integer")
	}

	fields := store.AddressFields{
		Address:    strings.TrimSpace(in.Address),
		City:       strings.TrimSpace(in.City),
		Department: strings.TrimSpace(in.Department),
		Country:    strings.TrimSpace(in.Country),
	}
	if err := validateFields(op, fields); err != nil {
		return nil, err
	}

	var created *models.Address
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions().Named(op), func(tx *sqlx.Tx) error {
		if err := store.LockUserAddresses(ctx, tx, userID); err != nil {
			return err
		}

		existing, err := store.CountAddresses(ctx, tx, userID)
		if err != nil {
			return err
		}

		id, err := store.InsertAddress(ctx, tx, userID, fields)
		if err != nil {
			return err
		}

		if in.IsDefault || existing == 0 {
			if err := store.MakeDefaultAddress(ctx, tx, id, userID); err != nil {
				return err
			}
		}

		created, err = store.GetAddress(ctx, tx, id, userID)
		if errors.Is(err, database.ErrAddressNotFound) {
			return apperr.Internal(op, errors.New("created address could not be read back"))
		}
		return err
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInternal {
			return nil, err
		}
		return nil, s.internal(op, err, userID, 0)
	}

	log.Info().Int64("user_id", userID).Int64("address_id", created.ID).Bool("is_default", created.IsDefault).
		Msg("address created")

	return created, nil
}

// Update writes only the fields present in patch. Setting is_default to true
// moves the default flag here; clearing it on the current default is refused
// because that would leave the user without one.
func (s *Service) Update(ctx context.Context, id, userID int64, patch *Patch) (*models.Address, error) {
	const op = "address.Update"

	if err := validateIDs(op, id, userID); err != nil {
		return nil, err
	}
	if patch.Len() == 0 {
		return nil, apperr.Validation(op, "no fields to update")
	}
	for field, value := range patch.text {
		if !isTextField(field) {
			return nil, apperr.Validation(op, "unknown field %q", field)
		}
		if strings.TrimSpace(value) == "" {
			return nil, apperr.Validation(op, "%s must not be empty", field)
		}
	}

	var updated *models.Address
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions().Named(op), func(tx *sqlx.Tx) error {
		if err := store.LockUserAddresses(ctx, tx, userID); err != nil {
			return err
		}

		current, err := store.GetAddress(ctx, tx, id, userID)
		if err != nil {
			if errors.Is(err, database.ErrAddressNotFound) {
				return s.notOwned(ctx, tx, op, id, userID)
			}
			return err
		}

		columns, values := patch.columns()
		if err := store.UpdateAddressColumns(ctx, tx, id, userID, columns, values); err != nil {
			return err
		}

		if isDefault, ok := patch.Default(); ok {
			switch {
			case isDefault && !current.IsDefault:
				if err := store.MakeDefaultAddress(ctx, tx, id, userID); err != nil {
					return err
				}
			case !isDefault && current.IsDefault:
				return apperr.Conflict(op, "address %d is the default address; choose another default instead", id)
			}
		}

		updated, err = store.GetAddress(ctx, tx, id, userID)
		return err
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInternal {
			return nil, err
		}
		return nil, s.internal(op, err, userID, id)
	}

	return updated, nil
}

func (s *Service) SetDefault(ctx context.Context, id, userID int64) (*models.Address, error) {
	const op = "address.SetDefault"

	if err := validateIDs(op, id, userID); err != nil {
		return nil, err
	}

	var updated *models.Address
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions().Named(op), func(tx *sqlx.Tx) error {
		if err := store.LockUserAddresses(ctx, tx, userID); err != nil {
			return err
		}

		if _, err := store.GetAddress(ctx, tx, id, userID); err != nil {
			if errors.Is(err, database.ErrAddressNotFound) {
				return s.notOwned(ctx, tx, op, id, userID)
			}
			return err
		}

		if err := store.MakeDefaultAddress(ctx, tx, id, userID); err != nil {
			return err
		}

		var err error
		updated, err = store.GetAddress(ctx, tx, id, userID)
		return err
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInternal {
			return nil, err
		}
		return nil, s.internal(op, err, userID, id)
	}

	log.Info().Int64("user_id", userID).Int64("address_id", id).Msg("default address changed")

	return updated, nil
}

// Delete removes the address unless an order that is still in flight ships
// to it. Deleting the default promotes the user's newest remaining address.
func (s *Service) Delete(ctx context.Context, id, userID int64) error {
	const op = "address.Delete"

	if err := validateIDs(op, id, userID); err != nil {
		return err
	}

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions().Named(op), func(tx *sqlx.Tx) error {
		if err := store.LockUserAddresses(ctx, tx, userID); err != nil {
			return err
		}

		current, err := store.GetAddress(ctx, tx, id, userID)
		if err != nil {
			if errors.Is(err, database.ErrAddressNotFound) {
				return s.notOwned(ctx, tx, op, id, userID)
			}
			return err
		}

		inUse, err := store.AddressHasActiveOrders(ctx, tx, id)
		if err != nil {
			return err
		}
		if inUse {
			return apperr.Conflict(op, "address %d is used by an order that has not been delivered", id)
		}

		if err := store.DeleteAddress(ctx, tx, id, userID); err != nil {
			return err
		}

		if !current.IsDefault {
			return nil
		}

		next, err := store.NewestAddressID(ctx, tx, userID)
		if err != nil || next == 0 {
			return err
		}
		return store.MakeDefaultAddress(ctx, tx, next, userID)
	})
	if err != nil {
		if apperr.KindOf(err) != apperr.KindInternal {
			return err
		}
		return s.internal(op, err, userID, id)
	}

	log.Info().Int64("user_id", userID).Int64("address_id", id).Msg("address deleted")

	return nil
}

// notOwned builds the error for an address the caller cannot see, following
// the configured ownership policy.
func (s *Service) notOwned(ctx context.Context, db sqlx.QueryerContext, op string, id, userID int64) error {
	if s.forbidden {
		owner, err := store.GetAddressOwner(ctx, db, id)
		if err == nil && owner != userID {
			return apperr.Forbidden(op, "address %d does not belong to user %d", id, userID)
		}
		if err != nil && !errors.Is(err, database.ErrAddressNotFound) {
			return err
		}
	}
	return apperr.NotFound(op, "address %d not found", id)
}

func (s *Service) internal(op string, err error, userID, addressID int64) error {
	log.Error().Err(err).Str("op", op).Int64("user_id", userID).Int64("address_id", addressID).
		Msg("address operation failed")
	return apperr.Internal(op, err)
}

func validateIDs(op string, id, userID int64) error {
	if userID <= 0 {
		return apperr.Validation(op, "user id must be a positive integer")
	}
	if id <= 0 {
		return apperr.Validation(op, "address id must be a positive integer")
	}
	return nil
}

func validateFields(op string, f store.AddressFields) error {
	switch {
	case f.Address == "":
		return apperr.Validation(op, "address is required")
	case f.City == "":
		return apperr.Validation(op, "city is required")
	case f.Department == "":
		return apperr.Validation(op, "department is required")
	case f.Country == "":
		return apperr.Validation(op, "country is required")
	}
	return nil
}
