package main

import (
	"context"
	"net/http"

	"zkypee/internal/config"
	"zkypee/internal/httpapi"
	"zkypee/internal/ledger"
	"zkypee/internal/rbac"
	"zkypee/internal/telephony"
	"zkypee/pkg/logger"
	"zkypee/pkg/metrics"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	handlers httpapi.Handlers
	webhooks telephony.WebhookHandler
	authMW   gin.HandlerFunc
	ledger   ledger.BalanceReader
	twilio   config.TwilioConfig
	health   func(ctx context.Context) error
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	h := d.handlers
	r.Use(metrics.Middleware())

	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := d.health(c.Request.Context()); err != nil {
			logger.FromGin(c).Warn("health check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", metrics.Handler())

	// Provider webhooks (public, signed).
	twilioHooks := r.Group("/", telephony.RequireTwilioSignature(d.twilio.AuthToken, d.twilio.PublicBaseURL))
	{
		twilioHooks.POST(telephony.VoiceWebhookPath, d.webhooks.HandleVoice)
		twilioHooks.POST(telephony.StatusWebhookPath, d.webhooks.HandleStatus)
	}
	r.POST("/webhooks/stripe", h.StripeWebhook)

	v1 := r.Group("/v1")

	// RATES routes
	ratesGroup := v1.Group("/rates")
	{
		ratesGroup.GET("", h.ListRates)
		ratesGroup.GET("/lookup", h.LookupRate)
		ratesGroup.GET("/search", h.SearchRates)
		ratesGroup.GET("/country-code", h.GuessCountryCode)
	}

	// TRIAL routes (unauthenticated callers, keyed by device)
	trials := v1.Group("/trial")
	{
		trials.GET("/availability", h.TrialAvailability)
		trials.POST("/usage", h.RecordTrialUsage)
	}

	// AUTH routes (dev token issuance)
	v1.POST("/auth/token", h.IssueDevToken)

	// protected API group
	protected := v1.Group("")
	protected.Use(d.authMW, rbac.RequireUser())
	{
		me := protected.Group("/me")
		{
			me.GET("/balance", h.GetBalance)
			me.GET("/transactions", h.ListTransactions)
			me.GET("/usage", h.GetUsage)
		}

		callsGroup := protected.Group("/calls")
		{
			callsGroup.POST("/preflight", h.PreflightCall)
			callsGroup.POST("", ledger.RequirePositiveBalance(d.ledger), h.PlaceCall)
			callsGroup.GET("/:call_id", h.GetCall)
		}

		// ADMIN routes
		admin := protected.Group("/admin")
		{
			admin.POST("/credits", rbac.RequireAnyRole(), h.AdminCredit)
			admin.GET("/users/:user_id/reconcile", rbac.RequireAnyRole(rbac.RoleSupport), h.Reconcile)
		}
	}
}
