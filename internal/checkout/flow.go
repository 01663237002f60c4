package checkout

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Step string

const (
	StepShipping     Step = "shipping"
	StepPayment      Step = "payment"
	StepConfirmation Step = "confirmation"
)

var allowedSteps = map[Step][]Step{
	StepShipping:     {StepPayment},
	StepPayment:      {StepShipping, StepConfirmation},
	StepConfirmation: {},
}

func canMove(from, to Step) bool {
	for _, s := range allowedSteps[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Flow is one user's progress through checkout. Nothing outside the flow is
// changed until the payment callback commits the order.
type Flow struct {
	UserID    int64     `json:"user_id"`
	Step      Step      `json:"step"`
	AddressID int64     `json:"address_id,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Receipt   *Receipt  `json:"receipt,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Receipt is what the shopper sees on the confirmation step.
type Receipt struct {
	OrderID          int64           `json:"order_id"`
	OrderNumber      string          `json:"order_number"`
	Total            decimal.Decimal `json:"total"`
	PaymentReference string          `json:"payment_reference"`
}

func newFlow(userID int64, now time.Time) *Flow {
	return &Flow{UserID: userID, Step: StepShipping, StartedAt: now}
}

// selectAddress records the shipping address and moves on to payment.
func (f *Flow) selectAddress(addressID int64) error {
	if !canMove(f.Step, StepPayment) {
		return fmt.Errorf("cannot choose a shipping address during %s", f.Step)
	}
	f.AddressID = addressID
	f.LastError = ""
	f.Step = StepPayment
	return nil
}

func (f *Flow) back() error {
	if f.Step == StepShipping {
		return nil
	}
	if !canMove(f.Step, StepShipping) {
		return fmt.Errorf("cannot go back from %s", f.Step)
	}
	f.Step = StepShipping
	return nil
}

func (f *Flow) confirm(receipt Receipt) error {
	if !canMove(f.Step, StepConfirmation) {
		return fmt.Errorf("cannot confirm during %s", f.Step)
	}
	f.Step = StepConfirmation
	f.LastError = ""
	f.Receipt = &receipt
	return nil
}

// fail keeps the flow on the payment step with the reason shown to the user.
func (f *Flow) fail(reason string) {
	f.LastError = reason
}
