// Package checkout drives the shipping, payment and confirmation steps and
// commits orders atomically once a payment succeeds.
package checkout

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/safar/storefront-checkout/internal/apperr"
	"github.com/safar/storefront-checkout/internal/cart"
	"github.com/safar/storefront-checkout/internal/models"
	"github.com/shopspring/decimal"
)

type AddressReader interface {
	Get(ctx context.Context, id, userID int64) (*models.Address, error)
}

type CartReader interface {
	Get(ctx context.Context, owner cart.Owner) (*cart.Cart, error)
}

type OrderCommitter interface {
	Commit(ctx context.Context, req CommitRequest) (*models.Order, error)
}

// PaymentResult is the payment provider's verdict, however it arrived.
type PaymentResult struct {
	Reference string
	Succeeded bool
	Amount    *decimal.Decimal
	CouponID  *int64
	// AddressID, when set on a flow still at the shipping step, selects the
	// address before the payment is applied. On a flow at the payment step it
	// must match the address already selected.
	AddressID int64
}

// DefaultFlowIdle is how long an untouched checkout flow is kept.
const DefaultFlowIdle = 30 * time.Minute

type flowEntry struct {
	// mu is held for the whole payment so one user's callbacks commit one at
	// a time.
	mu   sync.Mutex
	flow *Flow
	// touched is guarded by Orchestrator.mu.
	touched time.Time
}

type Orchestrator struct {
	addresses     AddressReader
	carts         CartReader
	creator       OrderCommitter
	notifier      Notifier
	notifyTimeout time.Duration

	mu    sync.Mutex
	flows map[int64]*flowEntry
	now   func() time.Time

	notifications sync.WaitGroup
}

func NewOrchestrator(addresses AddressReader, carts CartReader, creator OrderCommitter, notifier Notifier, notifyTimeout time.Duration) *Orchestrator {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Orchestrator{
		addresses:     addresses,
		carts:         carts,
		creator:       creator,
		notifier:      notifier,
		notifyTimeout: notifyTimeout,
		flows:         make(map[int64]*flowEntry),
		now:           time.Now,
	}
}

// entry returns the user's flow entry, creating it when create is set. A
// nil entry means the user has no flow in progress.
func (o *Orchestrator) entry(userID int64, create bool) *flowEntry {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.flows[userID]
	if !ok {
		if !create {
			return nil
		}
		e = &flowEntry{flow: newFlow(userID, o.now())}
		o.flows[userID] = e
	}
	e.touched = o.now()
	return e
}

// Evict forgets flows untouched for longer than idle. Flows busy with a
// payment are kept. It returns how many flows were dropped.
func (o *Orchestrator) Evict(idle time.Duration) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	cutoff := o.now().Add(-idle)
	evicted := 0
	for userID, e := range o.flows {
		if !e.touched.Before(cutoff) || !e.mu.TryLock() {
			continue
		}
		delete(o.flows, userID)
		e.mu.Unlock()
		evicted++
	}
	return evicted
}

// Run evicts idle flows until ctx is done.
func (o *Orchestrator) Run(ctx context.Context, idle time.Duration) {
	if idle <= 0 {
		idle = DefaultFlowIdle
	}
	interval := idle / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := o.Evict(idle); n > 0 {
				log.Debug().Int("evicted", n).Msg("evicted idle checkout flows")
			}
		}
	}
}

// Len reports how many flows are held.
func (o *Orchestrator) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.flows)
}

// State returns a copy of the user's flow. A user without one is at the
// shipping step; reading state does not start a flow.
func (o *Orchestrator) State(userID int64) (Flow, error) {
	if userID <= 0 {
		return Flow{}, apperr.Validation("checkout.State", "user id must be a positive integer")
	}

	e := o.entry(userID, false)
	if e == nil {
		return *newFlow(userID, o.now()), nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.flow, nil
}

// SelectShipping checks the address belongs to the user and advances to the
// payment step. A flow that already reached confirmation is replaced by a
// new one.
func (o *Orchestrator) SelectShipping(ctx context.Context, userID, addressID int64) (Flow, error) {
	const op = "checkout.SelectShipping"

	if userID <= 0 {
		return Flow{}, apperr.Validation(op, "user id must be a positive integer")
	}
	if addressID <= 0 {
		return Flow{}, apperr.Validation(op, "select or add a shipping address")
	}

	e := o.entry(userID, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := o.selectShippingLocked(ctx, op, e, addressID); err != nil {
		return *e.flow, err
	}
	return *e.flow, nil
}

func (o *Orchestrator) selectShippingLocked(ctx context.Context, op string, e *flowEntry, addressID int64) error {
	if e.flow.Step == StepConfirmation {
		e.flow = newFlow(e.flow.UserID, o.now())
	}

	if _, err := o.addresses.Get(ctx, addressID, e.flow.UserID); err != nil {
		return err
	}

	if err := e.flow.selectAddress(addressID); err != nil {
		return apperr.Conflict(op, "%s", err)
	}
	return nil
}

// Back returns to the shipping step. It is refused once the order is
// confirmed.
func (o *Orchestrator) Back(userID int64) (Flow, error) {
	const op = "checkout.Back"

	if userID <= 0 {
		return Flow{}, apperr.Validation(op, "user id must be a positive integer")
	}

	e := o.entry(userID, false)
	if e == nil {
		return *newFlow(userID, o.now()), nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.flow.back(); err != nil {
		return *e.flow, apperr.Conflict(op, "%s", err)
	}
	return *e.flow, nil
}

// HandlePayment applies a payment result to the user's flow. On success the
// address is re-checked, the order is committed and the flow moves to
// confirmation. On any failure the flow stays on the payment step with the
// cart and address as they were.
func (o *Orchestrator) HandlePayment(ctx context.Context, userID int64, result PaymentResult) (Flow, error) {
	const op = "checkout.HandlePayment"

	if userID <= 0 {
		return Flow{}, apperr.Validation(op, "user id must be a positive integer")
	}
	result.Reference = strings.TrimSpace(result.Reference)
	if result.Reference == "" {
		return Flow{}, apperr.Validation(op, "payment reference is required")
	}

	e := o.entry(userID, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	flow := e.flow
	if flow.Step == StepConfirmation && flow.Receipt != nil && flow.Receipt.PaymentReference == result.Reference {
		return *flow, nil
	}

	if flow.Step != StepPayment && result.AddressID > 0 {
		if err := o.selectShippingLocked(ctx, op, e, result.AddressID); err != nil {
			return *e.flow, err
		}
		flow = e.flow
	}

	if flow.Step != StepPayment {
		return *flow, apperr.Validation(op, "select or add a shipping address")
	}
	if result.AddressID > 0 && result.AddressID != flow.AddressID {
		flow.fail("the payment names a different shipping address")
		return *flow, apperr.Conflict(op, "payment %s names address %d but address %d is selected; go back to change it",
			result.Reference, result.AddressID, flow.AddressID)
	}

	if !result.Succeeded {
		flow.fail("payment was not approved")
		return *flow, apperr.Validation(op, "payment %s was not approved", result.Reference)
	}

	order, err := o.commit(ctx, flow, result)
	if err != nil {
		flow.fail(apperr.PublicMessage(err))
		return *flow, err
	}

	receipt := Receipt{
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		Total:            order.TotalAmount,
		PaymentReference: order.PaymentReference,
	}
	if err := flow.confirm(receipt); err != nil {
		return *flow, apperr.Internal(op, err)
	}

	o.notify(ctx, order)

	return *flow, nil
}

func (o *Orchestrator) commit(ctx context.Context, flow *Flow, result PaymentResult) (*models.Order, error) {
	if _, err := o.addresses.Get(ctx, flow.AddressID, flow.UserID); err != nil {
		return nil, err
	}

	c, err := o.carts.Get(ctx, cart.Owner{UserID: flow.UserID})
	if err != nil {
		return nil, err
	}

	return o.creator.Commit(ctx, CommitRequest{
		UserID:           flow.UserID,
		AddressID:        flow.AddressID,
		PaymentReference: result.Reference,
		CouponID:         result.CouponID,
		Amount:           result.Amount,
		Cart:             c,
		Since:            flow.StartedAt,
	})
}

// notify sends the confirmation in the background. Its failure is logged
// and never reaches the caller.
func (o *Orchestrator) notify(ctx context.Context, order *models.Order) {
	o.notifications.Add(1)
	go func() {
		defer o.notifications.Done()

		nctx := context.WithoutCancel(ctx)
		if o.notifyTimeout > 0 {
			var cancel context.CancelFunc
			nctx, cancel = context.WithTimeout(nctx, o.notifyTimeout)
			defer cancel()
		}

		if err := o.notifier.OrderConfirmed(nctx, order); err != nil {
			log.Error().Err(err).Int64("order_id", order.ID).Int64("user_id", order.UserID).
				Msg("order confirmation notification failed")
		}
	}()
}

// Wait blocks until every pending notification has finished.
func (o *Orchestrator) Wait() {
	o.notifications.Wait()
}
