package payments

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const testSecret = "whsec_test_secret"

func signedEvent(t *testing.T, eventType string, session map[string]any) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":          "evt_1",
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]any{"object": session},
	})
	require.NoError(t, err)
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   raw,
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return sp.Payload, sp.Header
}

func TestVerifyAndParse_CheckoutCompletedWithCreditsMetadata(t *testing.T) {
	p := NewStripeProcessor(testSecret)
	payload, sig := signedEvent(t, "checkout.session.completed", map[string]any{
		"id":             "cs_test_1",
		"object":         "checkout.session",
		"amount_total":   1000,
		"currency":       "usd",
		"payment_status": "paid",
		"metadata":       map[string]string{"user_id": "u1", "credits": "11.50"},
	})

	c, handled, err := p.VerifyAndParse(payload, sig)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "u1", c.UserID)
	assert.Equal(t, "cs_test_1", c.PaymentReferenceID)
	assert.True(t, c.AmountPaid.Equal(decimal.RequireFromString("10")))
	assert.True(t, c.CreditsGranted.Equal(decimal.RequireFromString("11.50")))
}

func TestVerifyAndParse_CreditsDefaultToAmountPaid(t *testing.T) {
	p := NewStripeProcessor(testSecret)
	payload, sig := signedEvent(t, "checkout.session.completed", map[string]any{
		"id":                  "cs_test_2",
		"object":              "checkout.session",
		"amount_total":        2550,
		"payment_status":      "paid",
		"client_reference_id": "u2",
	})

	c, handled, err := p.VerifyAndParse(payload, sig)
	require.NoError(t, err)
	require.True(t, handled)
	assert.Equal(t, "u2", c.UserID)
	assert.True(t, c.CreditsGranted.Equal(decimal.RequireFromString("25.50")))
}

func TestVerifyAndParse_IgnoresOtherEventsAndUnpaidSessions(t *testing.T) {
	p := NewStripeProcessor(testSecret)

	payload, sig := signedEvent(t, "customer.created", map[string]any{"id": "cus_1", "object": "customer"})
	_, handled, err := p.VerifyAndParse(payload, sig)
	require.NoError(t, err)
	assert.False(t, handled)

	payload, sig = signedEvent(t, "checkout.session.completed", map[string]any{
		"id":             "cs_test_3",
		"object":         "checkout.session",
		"amount_total":   500,
		"payment_status": "unpaid",
		"metadata":       map[string]string{"user_id": "u1"},
	})
	_, handled, err = p.VerifyAndParse(payload, sig)
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestVerifyAndParse_RejectsBadSignature(t *testing.T) {
	p := NewStripeProcessor("whsec_other")
	payload, sig := signedEvent(t, "checkout.session.completed", map[string]any{"id": "cs_x", "object": "checkout.session"})
	_, _, err := p.VerifyAndParse(payload, sig)
	assert.True(t, errors.Is(err, ErrSignature))
}

func TestVerifyAndParse_RejectsSessionWithoutUser(t *testing.T) {
	p := NewStripeProcessor(testSecret)
	payload, sig := signedEvent(t, "checkout.session.completed", map[string]any{
		"id":             "cs_test_4",
		"object":         "checkout.session",
		"amount_total":   500,
		"payment_status": "paid",
	})
	_, _, err := p.VerifyAndParse(payload, sig)
	assert.ErrorIs(t, err, ErrInvalidEvent)
}
