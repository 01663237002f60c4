package checkout

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/safar/storefront-checkout/internal/models"
)

// Notifier sends the order confirmation message. Delivery is best effort.
type Notifier interface {
	OrderConfirmed(ctx context.Context, order *models.Order) error
}

// LogNotifier writes confirmations to the log. It stands in for a mail or
// messaging sender.
type LogNotifier struct{}

func (LogNotifier) OrderConfirmed(_ context.Context, order *models.Order) error {
	log.Info().
		Int64("order_id", order.ID).
		Int64("user_id", order.UserID).
		Str("order_number", order.OrderNumber).
		Str("total", order.TotalAmount.StringFixed(2)).
		Int("items", len(order.Items)).
		Msg("order confirmation sent")
	return nil
}
