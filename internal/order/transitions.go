package order

import "github.com/safar/storefront-checkout/internal/models"

var allowedTransitions = map[string][]string{
	models.OrderStatusPending:    {models.OrderStatusPaid, models.OrderStatusCancelled},
	models.OrderStatusPaid:       {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing: {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:    {models.OrderStatusDelivered},
	models.OrderStatusDelivered:  {},
	models.OrderStatusCancelled:  {},
}

func isValidStatus(status string) bool {
	_, ok := allowedTransitions[status]
	return ok
}

// CanTransition reports whether an order may move from one status to
// another. Statuses only move forward; delivered and cancelled are final.
func CanTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
