package payments

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	ProviderStripe = "stripe"

	// MetadataUserID and MetadataCredits are set on the checkout session when it is created.
	MetadataUserID  = "user_id"
	MetadataCredits = "credits"
)

// StripeProcessor verifies Stripe webhooks and extracts paid checkout sessions.
type StripeProcessor struct {
	secret string
}

func NewStripeProcessor(secret string) *StripeProcessor {
	return &StripeProcessor{secret: secret}
}

// VerifyAndParse returns handled=false for events that carry no payment to credit.
func (p *StripeProcessor) VerifyAndParse(payload []byte, signature string) (Confirmation, bool, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Confirmation{}, false, fmt.Errorf("%w: %w", ErrSignature, err)
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
	default:
		return Confirmation{}, false, nil
	}
	if event.Data == nil {
		return Confirmation{}, false, ErrInvalidEvent
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return Confirmation{}, false, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if cs.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		// Async methods complete the session before funds settle.
		return Confirmation{}, false, nil
	}

	c, err := confirmationFromSession(cs)
	if err != nil {
		return Confirmation{}, false, err
	}
	return c, true, nil
}

func confirmationFromSession(cs stripe.CheckoutSession) (Confirmation, error) {
	userID := strings.TrimSpace(cs.Metadata[MetadataUserID])
	if userID == "" {
		userID = strings.TrimSpace(cs.ClientReferenceID)
	}

	paid := decimal.New(cs.AmountTotal, -2)
	credits := paid
	if raw := strings.TrimSpace(cs.Metadata[MetadataCredits]); raw != "" {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return Confirmation{}, fmt.Errorf("%w: credits %q", ErrInvalidEvent, raw)
		}
		credits = v
	}

	c := Confirmation{
		Provider:           ProviderStripe,
		UserID:             userID,
		PaymentReferenceID: cs.ID,
		AmountPaid:         paid,
		Currency:           string(cs.Currency),
		CreditsGranted:     credits,
	}
	if err := c.Validate(); err != nil {
		return Confirmation{}, err
	}
	return c, nil
}
