package httpapi

import (
	"net/http"
	"strings"

	"zkypee/internal/audit"
	"zkypee/internal/auth"
	"zkypee/internal/ledger"
	"zkypee/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type adminCreditRequest struct {
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
	// Kind is adjustment (default) or referral_bonus.
	Kind           ledger.Kind `json:"kind"`
	IdempotencyKey string      `json:"idempotency_key"`
	Reason         string      `json:"reason"`
	Metadata       string      `json:"metadata,omitempty"`
}

// AdminCredit grants credits to a user and records an audit event.
// RBAC: admin.
func (h Handlers) AdminCredit(c *gin.Context) {
	if h.Ledger == nil || h.Audit == nil {
		notConfigured(c, "ledger")
		return
	}
	adminUserID, ok := callerID(c)
	if !ok {
		return
	}
	adminRole, _ := auth.Role(c.Request.Context())

	var req adminCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Kind == "" {
		req.Kind = ledger.KindAdjustment
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	switch {
	case req.UserID == "":
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	case req.IdempotencyKey == "":
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "idempotency_key required"})
		return
	case strings.TrimSpace(req.Reason) == "":
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "reason required"})
		return
	case req.Kind != ledger.KindAdjustment && req.Kind != ledger.KindReferralBonus:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "kind must be adjustment or referral_bonus"})
		return
	case !req.Amount.IsPositive():
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		return
	}

	ctx := c.Request.Context()
	res, err := h.Ledger.Credit(ctx, req.UserID, req.Amount, req.Kind, req.IdempotencyKey)
	if err != nil {
		writeError(c, err)
		return
	}
	if !res.Duplicate {
		actor := audit.Actor{UserID: adminUserID, Role: adminRole, IP: c.ClientIP()}
		if err := h.Audit.LogCreditAdjustment(ctx, actor, req.UserID, req.Amount, req.IdempotencyKey, req.Reason, req.Metadata); err != nil {
			// The credit stands.
			logger.FromGin(c).Error("audit append failed", "err", err, "target_user_id", req.UserID)
		}
	}
	c.JSON(http.StatusOK, res)
}

// Reconcile replays a user's ledger against the stored balance.
// RBAC: support or admin.
func (h Handlers) Reconcile(c *gin.Context) {
	if h.Ledger == nil {
		notConfigured(c, "ledger")
		return
	}
	rec, err := h.Ledger.Reconcile(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
