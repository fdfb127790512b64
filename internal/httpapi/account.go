package httpapi

import (
	"net/http"

	"zkypee/internal/ledger"

	"github.com/gin-gonic/gin"
)

func (h Handlers) GetBalance(c *gin.Context) {
	if h.Ledger == nil {
		notConfigured(c, "ledger")
		return
	}
	userID, ok := callerID(c)
	if !ok {
		return
	}
	acct, err := h.Ledger.Account(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

// ListTransactions returns the caller's ledger entries, oldest first.
// Optional from/to bound the window.
func (h Handlers) ListTransactions(c *gin.Context) {
	if h.Ledger == nil {
		notConfigured(c, "ledger")
		return
	}
	userID, ok := callerID(c)
	if !ok {
		return
	}
	rng, ok := timeRange(c)
	if !ok {
		return
	}
	txs, err := h.Ledger.Transactions(c.Request.Context(), userID, rng.From, rng.To)
	if err != nil {
		writeError(c, err)
		return
	}
	if txs == nil {
		txs = []ledger.Transaction{}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (h Handlers) GetUsage(c *gin.Context) {
	if h.Reporting == nil {
		notConfigured(c, "reporting")
		return
	}
	userID, ok := callerID(c)
	if !ok {
		return
	}
	rng, ok := timeRange(c)
	if !ok {
		return
	}
	sum, err := h.Reporting.UsageSummary(c.Request.Context(), userID, rng)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
