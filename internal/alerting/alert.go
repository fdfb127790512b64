package alerting

import (
	"context"
	"errors"
	"time"

	"zkypee/pkg/logger"
	"zkypee/pkg/metrics"

	"github.com/shopspring/decimal"
)

// Kind names the money path that could not be completed.
type Kind string

const (
	KindUnbilledCall      Kind = "unbilled_call"
	KindUncreditedPayment Kind = "uncredited_payment"
)

// Alert is a dead-letter entry for an operator to settle by hand.
type Alert struct {
	Kind               Kind            `json:"kind"`
	CallID             string          `json:"call_id,omitempty"`
	UserID             string          `json:"user_id,omitempty"`
	PaymentReferenceID string          `json:"payment_reference_id,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	Error              string          `json:"error"`
	OccurredAt         time.Time       `json:"occurred_at"`
}

// Key identifies the alert for partitioning and dedupe downstream.
func (a Alert) Key() string {
	if a.CallID != "" {
		return string(a.Kind) + ":" + a.CallID
	}
	return string(a.Kind) + ":" + a.PaymentReferenceID
}

type Sink interface {
	Publish(ctx context.Context, a Alert) error
}

// Raise publishes a and counts it. A sink failure is logged and returned;
// the alert line in the log is the last resort.
func Raise(ctx context.Context, sink Sink, a Alert) error {
	if a.OccurredAt.IsZero() {
		a.OccurredAt = time.Now().UTC()
	}
	metrics.Alerts.WithLabelValues(string(a.Kind)).Inc()

	if sink == nil {
		sink = LogSink{}
	}
	err := sink.Publish(ctx, a)
	if err != nil {
		logger.From(ctx).Error("alert publish failed",
			"kind", a.Kind,
			"call_id", a.CallID,
			"user_id", a.UserID,
			"payment_reference_id", a.PaymentReferenceID,
			"amount", a.Amount.String(),
			"cause", a.Error,
			"error", err,
		)
	}
	return err
}

// LogSink writes alerts to the structured log at ERROR level.
type LogSink struct{}

func (LogSink) Publish(ctx context.Context, a Alert) error {
	logger.From(ctx).Error("billing alert",
		"kind", a.Kind,
		"call_id", a.CallID,
		"user_id", a.UserID,
		"payment_reference_id", a.PaymentReferenceID,
		"amount", a.Amount.String(),
		"cause", a.Error,
	)
	return nil
}

// Multi fans an alert out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, a Alert) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
