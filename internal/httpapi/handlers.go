package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"zkypee/internal/audit"
	"zkypee/internal/auth"
	"zkypee/internal/billing"
	"zkypee/internal/ledger"
	"zkypee/internal/payments"
	"zkypee/internal/rates"
	"zkypee/internal/reporting"
	"zkypee/internal/trial"
	"zkypee/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Rates     *rates.Service
	Ledger    *ledger.Service
	Trials    *trial.Tracker
	Billing   *billing.Coordinator
	Reporting *reporting.Service
	Audit     *audit.Service
	Stripe    *payments.StripeProcessor
	Payments  *payments.Service

	// DevTokens enables unauthenticated token issuance. Never set in production.
	DevTokens bool
}

// writeError maps domain errors onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, payments.ErrSignature):
		return http.StatusBadRequest, "invalid signature"
	case errors.Is(err, billing.ErrInvalidInput),
		errors.Is(err, trial.ErrInvalidInput),
		errors.Is(err, ledger.ErrInvalidArgument),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, payments.ErrInvalidEvent),
		errors.Is(err, audit.ErrInvalidEvent):
		return http.StatusBadRequest, "invalid input"
	case errors.Is(err, billing.ErrInsufficientCredits):
		return http.StatusPaymentRequired, "insufficient credits"
	case errors.Is(err, billing.ErrTrialExhausted):
		return http.StatusPaymentRequired, "trial allowance exhausted"
	case errors.Is(err, billing.ErrCallNotFound), errors.Is(err, ledger.ErrAccountNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, billing.ErrDuplicateCall):
		return http.StatusConflict, "call already exists"
	case errors.Is(err, billing.ErrTooManyCalls):
		return http.StatusTooManyRequests, "too many concurrent calls"
	case errors.Is(err, ledger.ErrStorageUnavailable), errors.Is(err, billing.ErrNoPlacer):
		return http.StatusServiceUnavailable, "service unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func notConfigured(c *gin.Context, what string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": what + " not configured"})
}

// callerID reads the authenticated user id placed in context by auth.RequireAccessToken.
func callerID(c *gin.Context) (string, bool) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil || uid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return "", false
	}
	return uid, true
}

// timeRange parses optional RFC 3339 from/to query parameters.
func timeRange(c *gin.Context) (reporting.TimeRange, bool) {
	var rng reporting.TimeRange
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &rng.From}, {"to", &rng.To}} {
		raw := strings.TrimSpace(c.Query(p.name))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": p.name + " must be RFC 3339"})
			return reporting.TimeRange{}, false
		}
		*p.dst = t
	}
	if !rng.From.IsZero() && !rng.To.IsZero() && rng.To.Before(rng.From) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must not be before from"})
		return reporting.TimeRange{}, false
	}
	return rng, true
}
