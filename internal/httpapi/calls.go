package httpapi

import (
	"errors"
	"net/http"

	"zkypee/internal/auth"
	"zkypee/internal/billing"
	"zkypee/internal/rbac"

	"github.com/gin-gonic/gin"
)

type callRequest struct {
	Destination string `json:"destination"`
}

// PreflightCall quotes a call without dialing. A denied quote is still a 200.
func (h Handlers) PreflightCall(c *gin.Context) {
	if h.Billing == nil {
		notConfigured(c, "billing")
		return
	}
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req callRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	q, err := h.Billing.Preflight(c.Request.Context(), userID, req.Destination)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h Handlers) PlaceCall(c *gin.Context) {
	if h.Billing == nil {
		notConfigured(c, "billing")
		return
	}
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req callRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	placed, err := h.Billing.PlaceCall(c.Request.Context(), userID, req.Destination)
	if err != nil {
		if errors.Is(err, billing.ErrInsufficientCredits) {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": "insufficient credits", "quote": placed.Quote})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, placed)
}

// GetCall returns one call record. Only the owner, support and admin may read it.
func (h Handlers) GetCall(c *gin.Context) {
	if h.Billing == nil {
		notConfigured(c, "billing")
		return
	}
	userID, ok := callerID(c)
	if !ok {
		return
	}
	rec, err := h.Billing.Lookup(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	role, _ := auth.Role(c.Request.Context())
	if rec.UserID != userID && role != rbac.RoleSupport && !rbac.IsAdmin(role) {
		// Foreign calls look missing.
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}
