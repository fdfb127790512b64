package httpapi

import (
	"io"
	"net/http"

	"zkypee/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBody        = 64 << 10
)

// StripeWebhook credits paid checkout sessions.
//
// Events that carry nothing to credit are acknowledged with 200. Ledger
// failures answer 500 so Stripe redelivers; redelivery is deduplicated by the
// payment reference.
func (h Handlers) StripeWebhook(c *gin.Context) {
	if h.Stripe == nil || h.Payments == nil {
		notConfigured(c, "payments")
		return
	}
	log := logger.FromGin(c)

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	conf, handled, err := h.Stripe.VerifyAndParse(payload, c.GetHeader(stripeSignatureHeader))
	if err != nil {
		log.Warn("stripe webhook rejected", "err", err)
		writeError(c, err)
		return
	}
	if !handled {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	res, err := h.Payments.OnPaymentConfirmed(c.Request.Context(), conf)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "duplicate": res.Duplicate, "balance": res.Balance})
}
