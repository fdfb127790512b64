package ledger

import (
	"context"
	"errors"
	"net/http"

	"zkypee/internal/auth"
	"zkypee/internal/rbac"
	"zkypee/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// BalanceReader is the slice of Service the middleware needs.
type BalanceReader interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
}

// RequirePositiveBalance rejects callers whose balance is zero with 402.
// A storage failure also rejects the request; the call gate fails closed.
// admin bypasses the check.
func RequirePositiveBalance(svc BalanceReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		if role, _ := auth.Role(c.Request.Context()); rbac.IsAdmin(role) {
			c.Next()
			return
		}
		userID, err := auth.UserID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
			return
		}

		bal, err := svc.GetBalance(c.Request.Context(), userID)
		if err != nil {
			logger.FromGin(c).Error("balance lookup failed", "err", err)
			status := http.StatusInternalServerError
			if errors.Is(err, ErrStorageUnavailable) {
				status = http.StatusServiceUnavailable
			}
			c.AbortWithStatusJSON(status, gin.H{"error": "balance unavailable"})
			return
		}
		if !bal.IsPositive() {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "insufficient credits"})
			return
		}
		c.Next()
	}
}
