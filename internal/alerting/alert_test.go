package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"zkypee/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

type failingSink struct{ err error }

func (s failingSink) Publish(context.Context, Alert) error { return s.err }

func TestKafkaSink_PublishesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSinkWithWriter(w)

	a := Alert{Kind: KindUnbilledCall, CallID: "CA1", UserID: "u1", Amount: decimal.RequireFromString("0.30"), Error: "boom"}
	require.NoError(t, sink.Publish(context.Background(), a))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "unbilled_call:CA1", string(w.msgs[0].Key))

	var got Alert
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, got.Amount.Equal(a.Amount))
}

func TestRaise_CountsAndReturnsSinkError(t *testing.T) {
	before := testutil.ToFloat64(metrics.Alerts.WithLabelValues(string(KindUncreditedPayment)))

	sinkErr := errors.New("broker down")
	err := Raise(context.Background(), failingSink{err: sinkErr}, Alert{Kind: KindUncreditedPayment, PaymentReferenceID: "cs_1"})
	assert.ErrorIs(t, err, sinkErr)

	after := testutil.ToFloat64(metrics.Alerts.WithLabelValues(string(KindUncreditedPayment)))
	assert.Equal(t, before+1, after)
}

func TestMulti_JoinsErrorsAndStillDelivers(t *testing.T) {
	w := &fakeWriter{}
	sinkErr := errors.New("nope")
	m := Multi{failingSink{err: sinkErr}, NewKafkaSinkWithWriter(w), LogSink{}}

	err := m.Publish(context.Background(), Alert{Kind: KindUnbilledCall, CallID: "CA2"})
	assert.ErrorIs(t, err, sinkErr)
	assert.Len(t, w.msgs, 1)
}

func TestRaise_NilSinkFallsBackToLog(t *testing.T) {
	assert.NoError(t, Raise(context.Background(), nil, Alert{Kind: KindUnbilledCall, CallID: "CA3"}))
}
