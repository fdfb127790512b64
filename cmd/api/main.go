package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zkypee/internal/alerting"
	"zkypee/internal/audit"
	"zkypee/internal/auth"
	"zkypee/internal/billing"
	"zkypee/internal/cache"
	"zkypee/internal/calls"
	"zkypee/internal/config"
	"zkypee/internal/httpapi"
	"zkypee/internal/ledger"
	"zkypee/internal/payments"
	"zkypee/internal/rates"
	"zkypee/internal/reporting"
	"zkypee/internal/store"
	"zkypee/internal/telephony"
	"zkypee/internal/trial"
	"zkypee/pkg/logger"
	"zkypee/pkg/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// slotTTL bounds how long a leaked concurrent-call slot survives a crashed process.
const slotTTL = 4 * time.Hour

// trialCallsPerDevice caps in-flight trial calls per fingerprint. Usage is
// counted at completion, so without it one device could run many at once.
const trialCallsPerDevice = 1

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: cfg.DB.MaxOpenConns})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.DB.AutoMigrate {
		if err := store.Migrate(rootCtx, db); err != nil {
			log.Error("migrations failed", "err", err)
			os.Exit(1)
		}
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Rates
	rateCache, err := cache.New(cfg.Rates.Cache, rdb, "zkypee:rates:")
	if err != nil {
		log.Error("rate cache init failed", "err", err)
		os.Exit(1)
	}
	rateSvc := rates.NewService(
		rates.LoadFile(cfg.Rates.File, log),
		cfg.Rates.DefaultRate,
		rates.WithCache(rateCache, cfg.Rates.CacheTTL),
	)

	// Ledger and call state
	ledgerSvc := ledger.NewService(ledger.NewPostgresRepo(db), ledger.Options{
		StartingBalance: cfg.Billing.StartingBalance,
		StoreTimeout:    cfg.Billing.StoreTimeout,
	})
	callStore := calls.NewPostgresStore(db)
	tracker := trial.NewTracker(trial.NewPostgresStore(db))
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	alerts, closeAlerts, err := buildAlertSink(cfg.Alerting)
	if err != nil {
		log.Error("alert sink init failed", "err", err)
		os.Exit(1)
	}
	defer closeAlerts()

	slots, err := utils.NewSlotLimiter(rdb, cfg.Billing.MaxConcurrent, slotTTL)
	if err != nil {
		log.Error("slot limiter init failed", "err", err)
		os.Exit(1)
	}

	trialSlots, err := utils.NewSlotLimiter(rdb, trialCallsPerDevice, slotTTL)
	if err != nil {
		log.Error("trial slot limiter init failed", "err", err)
		os.Exit(1)
	}

	deps := billing.Deps{
		Rates:      rateSvc,
		Ledger:     ledgerSvc,
		Trials:     tracker,
		Calls:      callStore,
		Alerts:     alerts,
		Slots:      slots,
		TrialSlots: trialSlots,
	}
	if cfg.Twilio.AccountSID != "" {
		provider, err := telephony.NewTwilioProvider(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.PublicBaseURL)
		if err != nil {
			log.Error("twilio init failed", "err", err)
			os.Exit(1)
		}
		deps.Placer = provider
		if err := provider.HealthCheck(rootCtx); err != nil {
			log.Warn("twilio health check failed", "err", err)
		}
	} else {
		log.Warn("twilio not configured; server-placed calls are disabled")
	}

	coordinator := billing.NewCoordinator(deps, billing.Options{
		CallerID:       cfg.Twilio.CallerID,
		DebitRetries:   cfg.Billing.DebitRetries,
		RetryBaseDelay: cfg.Billing.RetryBaseDelay,
	})

	handlers := httpapi.Handlers{
		Auth:      authManager,
		Rates:     rateSvc,
		Ledger:    ledgerSvc,
		Trials:    tracker,
		Billing:   coordinator,
		Reporting: reporting.NewService(reporting.StoreRepo{Calls: callStore, Ledger: ledgerSvc}),
		Audit:     auditSvc,
		Stripe:    payments.NewStripeProcessor(cfg.Stripe.WebhookSecret),
		Payments:  payments.NewService(ledgerSvc, alerts, cfg.Billing.DebitRetries, cfg.Billing.RetryBaseDelay),
		DevTokens: cfg.App.Env == "local" || cfg.App.Env == "dev",
	}
	webhooks := telephony.WebhookHandler{Billing: coordinator, CallerID: cfg.Twilio.CallerID}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		handlers: handlers,
		webhooks: webhooks,
		authMW:   auth.RequireAccessToken(authManager),
		ledger:   ledgerSvc,
		twilio:   cfg.Twilio,
		health: func(ctx context.Context) error {
			if err := utils.HealthCheck(ctx, db, 2*time.Second); err != nil {
				return err
			}
			return rdb.Ping(ctx).Err()
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, ctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		reloadRatesOnHangup(ctx, rateSvc, cfg.Rates.File, log)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("api stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("api stopped")
}

// buildAlertSink returns the configured alert sink. Alerts are always logged;
// a broker backend is added on top.
func buildAlertSink(cfg config.AlertingConfig) (alerting.Sink, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case "kafka":
		k := alerting.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		return alerting.Multi{alerting.LogSink{}, k}, closer(k), nil
	case "amqp":
		a, err := alerting.NewAMQPSink(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, noop, err
		}
		return alerting.Multi{alerting.LogSink{}, a}, closer(a), nil
	default:
		return alerting.LogSink{}, noop, nil
	}
}

func closer(c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			slog.Warn("alert sink close failed", "err", err)
		}
	}
}

// reloadRatesOnHangup swaps in a fresh rate sheet on SIGHUP until ctx ends.
func reloadRatesOnHangup(ctx context.Context, svc *rates.Service, path string, log *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := svc.Reload(path, log); err != nil {
				log.Error("rate table reload failed; keeping current table", "err", err)
			}
		}
	}
}
