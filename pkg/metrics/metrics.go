package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zkypee_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zkypee_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
	}, []string{"method", "endpoint"})

	// RateLookups counts resolver outcomes by match tier.
	RateLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zkypee_rate_lookups_total",
		Help: "Rate resolutions by match tier",
	}, []string{"tier"})

	// LedgerPostings counts ledger writes by transaction kind and outcome.
	LedgerPostings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zkypee_ledger_postings_total",
		Help: "Ledger postings by kind and outcome",
	}, []string{"kind", "outcome"})

	// CallSettlements counts call completions by outcome.
	CallSettlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zkypee_call_settlements_total",
		Help: "Call lifecycle settlements by outcome",
	}, []string{"outcome"})

	// Alerts counts operational alerts raised, by kind.
	Alerts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zkypee_alerts_total",
		Help: "Operational alerts raised",
	}, []string{"kind"})
)

// Middleware records request count and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		httpLatency.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
		httpReqTotal.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler exposes the default registry for scraping.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
