package payments

import (
	"context"
	"errors"
	"time"

	"zkypee/internal/alerting"
	"zkypee/internal/ledger"
	"zkypee/pkg/logger"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

type Ledger interface {
	Credit(ctx context.Context, userID string, amount decimal.Decimal, kind ledger.Kind, referenceID string) (ledger.PostResult, error)
}

// Service credits confirmed payments exactly once per payment reference.
type Service struct {
	ledger    Ledger
	alerts    alerting.Sink
	retries   uint64
	retryBase time.Duration
}

func NewService(l Ledger, alerts alerting.Sink, retries uint64, retryBase time.Duration) *Service {
	if retryBase <= 0 {
		retryBase = 200 * time.Millisecond
	}
	if alerts == nil {
		alerts = alerting.LogSink{}
	}
	return &Service{ledger: l, alerts: alerts, retries: retries, retryBase: retryBase}
}

// OnPaymentConfirmed credits c.CreditsGranted. Redelivered events for the same
// payment reference return the original posting with Duplicate set.
// Transient ledger failures are retried; a payment that still cannot be
// credited raises an uncredited_payment alert and returns the error.
func (s *Service) OnPaymentConfirmed(ctx context.Context, c Confirmation) (ledger.PostResult, error) {
	if err := c.Validate(); err != nil {
		return ledger.PostResult{}, err
	}
	ctx = context.WithoutCancel(ctx)
	log := logger.From(ctx).With("user_id", c.UserID, "payment_reference_id", c.PaymentReferenceID)

	var out ledger.PostResult
	b := retry.WithMaxRetries(s.retries, retry.NewExponential(s.retryBase))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		res, err := s.ledger.Credit(ctx, c.UserID, c.CreditsGranted, ledger.KindPurchase, c.PaymentReferenceID)
		if err != nil {
			if errors.Is(err, ledger.ErrStorageUnavailable) {
				log.Warn("payment credit attempt failed", "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		log.Error("payment not credited", "credits", c.CreditsGranted.String(), "error", err)
		_ = alerting.Raise(ctx, s.alerts, alerting.Alert{
			Kind:               alerting.KindUncreditedPayment,
			UserID:             c.UserID,
			PaymentReferenceID: c.PaymentReferenceID,
			Amount:             c.CreditsGranted,
			Error:              err.Error(),
		})
		return ledger.PostResult{}, err
	}

	if out.Duplicate {
		log.Info("payment already credited")
	} else {
		log.Info("payment credited", "credits", c.CreditsGranted.String(), "balance", out.Balance.String())
	}
	return out, nil
}
