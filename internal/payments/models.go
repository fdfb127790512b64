package payments

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Confirmation is a settled payment, normalized from the provider event.
type Confirmation struct {
	Provider           string          `json:"provider"`
	UserID             string          `json:"user_id"`
	PaymentReferenceID string          `json:"payment_reference_id"`
	AmountPaid         decimal.Decimal `json:"amount_paid"`
	Currency           string          `json:"currency,omitempty"`
	// CreditsGranted is what the ledger is credited with.
	CreditsGranted decimal.Decimal `json:"credits_granted"`
}

func (c Confirmation) Validate() error {
	if c.UserID == "" || c.PaymentReferenceID == "" {
		return ErrInvalidEvent
	}
	if !c.CreditsGranted.IsPositive() {
		return ErrInvalidEvent
	}
	return nil
}

var (
	ErrInvalidEvent = errors.New("payments: invalid payment event")
	ErrSignature    = errors.New("payments: signature verification failed")
)
