package store

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/safar/storefront-checkout/internal/models"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// OrderPage is one keyset page of a user's order history, newest first.
type OrderPage struct {
	Orders     []models.Order
	NextCursor string
	HasMore    bool
}

// OrderCursor is the (created_at, id) position of the last order on a page.
// Clients treat the encoded form as opaque.
type OrderCursor struct {
	CreatedAt time.Time `json:"ts"`
	ID        int64     `json:"id"`
}

func (c OrderCursor) Encode() string {
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor parses a cursor issued by Encode. An empty string decodes to
// nil, meaning the first page.
func DecodeCursor(encoded string) (*OrderCursor, error) {
	if encoded == "" {
		return nil, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	var cursor OrderCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if cursor.ID <= 0 || cursor.CreatedAt.IsZero() {
		return nil, ErrInvalidCursor
	}

	return &cursor, nil
}
