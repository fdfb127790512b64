package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// clientIP prefers an explicit ip from the caller and falls back to the
// connection address gin resolved through trusted proxies.
func clientIP(c *gin.Context, explicit string) string {
	if ip := strings.TrimSpace(explicit); ip != "" {
		return ip
	}
	return c.ClientIP()
}

func (h Handlers) TrialAvailability(c *gin.Context) {
	if h.Trials == nil {
		notConfigured(c, "trials")
		return
	}
	a, err := h.Trials.CheckAvailability(c.Request.Context(), c.Query("fingerprint"), clientIP(c, c.Query("ip")))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

type trialUsageRequest struct {
	Fingerprint     string `json:"fingerprint"`
	IP              string `json:"ip"`
	CallID          string `json:"call_id"`
	DurationSeconds int    `json:"duration_seconds"`
}

// RecordTrialUsage counts a finished trial call. Repeating a call_id is a no-op.
func (h Handlers) RecordTrialUsage(c *gin.Context) {
	if h.Trials == nil {
		notConfigured(c, "trials")
		return
	}
	var req trialUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.DurationSeconds < 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "duration_seconds must not be negative"})
		return
	}
	rec, err := h.Trials.RecordUsage(c.Request.Context(), req.Fingerprint, clientIP(c, req.IP), req.CallID, req.DurationSeconds)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
