// Package billing drives a call from rate quote to final charge.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"zkypee/internal/alerting"
	"zkypee/internal/calls"
	"zkypee/internal/ledger"
	"zkypee/internal/pricing"
	"zkypee/internal/rates"
	"zkypee/pkg/logger"
	"zkypee/pkg/metrics"

	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

// Coordinator owns the call lifecycle:
//
//	initiated -> ringing -> answered -> completed
//	any non-terminal state -> failed
//
// The rate quoted at preflight is stored on the call record and is the rate
// billed at completion, even if the rate table is reloaded mid-call.
// Completion is idempotent per call id; the ledger dedupes the debit on the
// same key, so retried or concurrent callbacks never bill twice.
type Coordinator struct {
	rates  RateResolver
	ledger Ledger
	trials TrialTracker
	calls  calls.Store
	placer CallPlacer
	alerts alerting.Sink
	slots  CallSlots
	// trialSlots caps in-flight trial calls per device; usage is only
	// recorded at completion.
	trialSlots CallSlots

	callerID         string
	debitRetries     uint64
	retryBase        time.Duration
	trialCallSeconds int64

	clock func() time.Time
}

type Deps struct {
	Rates  RateResolver
	Ledger Ledger
	Trials TrialTracker
	Calls  calls.Store
	// Placer is optional; without it only provider-originated calls can start.
	Placer CallPlacer
	Alerts alerting.Sink
	// Slots is optional; without it concurrent calls are not capped.
	Slots CallSlots
	// TrialSlots is optional and keyed by trial fingerprint.
	TrialSlots CallSlots
}

type Options struct {
	CallerID       string
	DebitRetries   uint64
	RetryBaseDelay time.Duration
	// TrialCallSeconds caps each trial call. Zero uses DefaultTrialCallSeconds.
	TrialCallSeconds int64
}

const (
	DefaultDebitRetries     = 5
	DefaultRetryBaseDelay   = 200 * time.Millisecond
	DefaultTrialCallSeconds = 120
)

func NewCoordinator(d Deps, opts Options) *Coordinator {
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if opts.TrialCallSeconds <= 0 {
		opts.TrialCallSeconds = DefaultTrialCallSeconds
	}
	if d.Alerts == nil {
		d.Alerts = alerting.LogSink{}
	}
	return &Coordinator{
		rates:            d.Rates,
		ledger:           d.Ledger,
		trials:           d.Trials,
		calls:            d.Calls,
		placer:           d.Placer,
		alerts:           d.Alerts,
		slots:            d.Slots,
		trialSlots:       d.TrialSlots,
		callerID:         opts.CallerID,
		debitRetries:     opts.DebitRetries,
		retryBase:        opts.RetryBaseDelay,
		trialCallSeconds: opts.TrialCallSeconds,
		clock:            time.Now,
	}
}

// Preflight quotes a rate and the longest call the balance covers.
// A balance that cannot be read denies the call and returns the error.
func (c *Coordinator) Preflight(ctx context.Context, userID, destination string) (Quote, error) {
	if strings.TrimSpace(userID) == "" {
		return Quote{}, fmt.Errorf("%w: user_id required", ErrInvalidInput)
	}
	res, err := c.resolve(ctx, destination)
	if err != nil {
		return Quote{}, err
	}

	q := Quote{
		RatePerMinute:    res.Rate,
		Country:          res.Country,
		CountryCode:      res.CountryCode,
		NormalizedNumber: res.NormalizedNumber,
	}

	balance, err := c.ledger.GetBalance(ctx, userID)
	if err != nil {
		q.Reason = ReasonBalanceUnavailable
		logger.From(ctx).Error("preflight balance read failed", "user_id", userID, "error", err)
		return q, err
	}
	q.Balance = balance

	est := pricing.MaxAffordableMinutes(balance, res.Rate)
	q.EstimatedMaxMinutes = est.Minutes
	q.Unlimited = est.Unlimited
	q.Allowed = est.Unlimited || est.Minutes >= 1
	if !q.Allowed {
		q.Reason = ReasonInsufficientCredits
	}
	return q, nil
}

// PreflightTrial gates an unauthenticated call on the trial allowance.
// Tracker failures deny the call without surfacing an error.
func (c *Coordinator) PreflightTrial(ctx context.Context, fingerprint, ip, destination string) (TrialQuote, error) {
	res, err := c.resolve(ctx, destination)
	if err != nil {
		return TrialQuote{}, err
	}
	q := TrialQuote{Country: res.Country, NormalizedNumber: res.NormalizedNumber}

	a, err := c.trials.CheckAvailability(ctx, fingerprint, ip)
	if err != nil {
		if isInvalidTrialInput(err) {
			return TrialQuote{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		logger.From(ctx).Warn("trial availability check failed", "error", err)
		q.Reason = ReasonTrialUnavailable
		return q, nil
	}
	q.CallsUsed = a.CallsUsed
	q.Remaining = a.Remaining
	q.Allowed = a.Available
	if q.Allowed {
		q.MaxCallSeconds = c.trialCallSeconds
	} else {
		q.Reason = ReasonTrialExhausted
	}
	return q, nil
}

// PlaceCall quotes, dials through the configured placer and records the call.
func (c *Coordinator) PlaceCall(ctx context.Context, userID, destination string) (Placed, error) {
	q, err := c.Preflight(ctx, userID, destination)
	if err != nil {
		return Placed{Quote: q}, err
	}
	if !q.Allowed {
		return Placed{Quote: q}, ErrInsufficientCredits
	}
	if c.placer == nil {
		return Placed{Quote: q}, ErrNoPlacer
	}
	if err := c.acquireSlot(ctx, c.slots, userID); err != nil {
		return Placed{Quote: q}, err
	}

	callID, err := c.placer.InitiateCall(ctx, q.NormalizedNumber, c.callerID)
	if err != nil {
		c.releaseSlot(ctx, c.slots, userID)
		return Placed{Quote: q}, fmt.Errorf("initiate call: %w", err)
	}
	if _, err := c.OnCallInitiated(ctx, Initiation{
		CallID:         callID,
		UserID:         userID,
		Destination:    q.NormalizedNumber,
		Country:        q.Country,
		RatePerMinute:  q.RatePerMinute,
		MaxCallSeconds: q.MaxCallSeconds(),
	}); err != nil {
		c.releaseSlot(ctx, c.slots, userID)
		return Placed{CallID: callID, Quote: q}, err
	}
	return Placed{CallID: callID, Quote: q}, nil
}

// StartCall authorizes a call the provider has already assigned an id to,
// as happens for browser-originated calls, and records it when allowed.
func (c *Coordinator) StartCall(ctx context.Context, callID, userID, destination string) (Quote, error) {
	q, err := c.Preflight(ctx, userID, destination)
	if err != nil {
		return q, err
	}
	if !q.Allowed {
		return q, ErrInsufficientCredits
	}
	// Redelivered voice webhooks must not take a second slot.
	if existing, err := c.calls.Get(ctx, strings.TrimSpace(callID)); err == nil {
		if existing.UserID != userID {
			return q, ErrDuplicateCall
		}
		return q, nil
	}
	if err := c.acquireSlot(ctx, c.slots, userID); err != nil {
		return q, err
	}
	_, err = c.OnCallInitiated(ctx, Initiation{
		CallID:         callID,
		UserID:         userID,
		Destination:    q.NormalizedNumber,
		Country:        q.Country,
		RatePerMinute:  q.RatePerMinute,
		MaxCallSeconds: q.MaxCallSeconds(),
	})
	if err != nil {
		c.releaseSlot(ctx, c.slots, userID)
	}
	return q, err
}

// StartTrialCall is StartCall for the trial allowance. Trial calls only
// originate from the browser client; there is no server-placed variant.
// Each device holds at most one trial slot while its call is in flight.
func (c *Coordinator) StartTrialCall(ctx context.Context, callID, fingerprint, ip, destination string) (TrialQuote, error) {
	q, err := c.PreflightTrial(ctx, fingerprint, ip, destination)
	if err != nil {
		return q, err
	}
	if !q.Allowed {
		return q, ErrTrialExhausted
	}
	fingerprint = strings.TrimSpace(fingerprint)
	if existing, err := c.calls.Get(ctx, strings.TrimSpace(callID)); err == nil {
		if existing.TrialFingerprint != fingerprint {
			return q, ErrDuplicateCall
		}
		return q, nil
	}
	if err := c.acquireSlot(ctx, c.trialSlots, trialSlotKey(fingerprint)); err != nil {
		return q, err
	}
	_, err = c.OnCallInitiated(ctx, Initiation{
		CallID:           callID,
		TrialFingerprint: fingerprint,
		TrialIP:          strings.TrimSpace(ip),
		Destination:      q.NormalizedNumber,
		Country:          q.Country,
		MaxCallSeconds:   q.MaxCallSeconds,
	})
	if err != nil {
		c.releaseSlot(ctx, c.trialSlots, trialSlotKey(fingerprint))
	}
	return q, err
}

// Initiation describes a call that has just been placed.
// An empty UserID marks a trial call, which must carry TrialFingerprint.
type Initiation struct {
	CallID           string
	UserID           string
	TrialFingerprint string
	TrialIP          string
	Destination      string
	Country          string
	RatePerMinute    decimal.Decimal
	// MaxCallSeconds is the duration limit quoted at start. Zero means none.
	MaxCallSeconds int64
}

// OnCallInitiated persists the call with its rate snapshot and a zero charge.
// Repeating it for the same call and owner returns the stored record.
func (c *Coordinator) OnCallInitiated(ctx context.Context, in Initiation) (calls.Record, error) {
	in.CallID = strings.TrimSpace(in.CallID)
	if in.CallID == "" {
		return calls.Record{}, fmt.Errorf("%w: call_id required", ErrInvalidInput)
	}
	if in.UserID == "" && in.TrialFingerprint == "" {
		return calls.Record{}, fmt.Errorf("%w: user_id or trial fingerprint required", ErrInvalidInput)
	}
	if in.RatePerMinute.IsNegative() {
		return calls.Record{}, fmt.Errorf("%w: negative rate", ErrInvalidInput)
	}
	if in.MaxCallSeconds < 0 {
		return calls.Record{}, fmt.Errorf("%w: negative time limit", ErrInvalidInput)
	}

	now := c.clock().UTC()
	rec := calls.Record{
		CallID:           in.CallID,
		UserID:           in.UserID,
		TrialFingerprint: in.TrialFingerprint,
		TrialIP:          in.TrialIP,
		Destination:      in.Destination,
		Country:          in.Country,
		Status:           calls.StatusInitiated,
		RatePerMinute:    in.RatePerMinute,
		MaxCallSeconds:   in.MaxCallSeconds,
		CreditsCharged:   decimal.Zero,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := c.calls.Create(ctx, rec)
	if errors.Is(err, calls.ErrDuplicate) {
		existing, gerr := c.calls.Get(ctx, in.CallID)
		if gerr != nil {
			return calls.Record{}, gerr
		}
		if existing.UserID != in.UserID || existing.TrialFingerprint != in.TrialFingerprint {
			return calls.Record{}, ErrDuplicateCall
		}
		return existing, nil
	}
	if err != nil {
		return calls.Record{}, fmt.Errorf("record call: %w", err)
	}

	logger.From(ctx).Info("call initiated",
		"call_id", rec.CallID,
		"user_id", rec.UserID,
		"trial", rec.IsTrial(),
		"country", rec.Country,
		"rate_per_minute", rec.RatePerMinute.String(),
	)
	return rec, nil
}

// OnStatusChanged applies a provider status event.
func (c *Coordinator) OnStatusChanged(ctx context.Context, callID string, status calls.Status, durationSeconds int) (calls.Record, error) {
	switch status {
	case calls.StatusCompleted:
		return c.OnCallCompleted(ctx, callID, durationSeconds)
	case calls.StatusFailed:
		return c.OnCallFailed(ctx, callID)
	case calls.StatusRinging, calls.StatusAnswered, calls.StatusInitiated:
		return c.advance(ctx, callID, status)
	default:
		return calls.Record{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
}

func (c *Coordinator) advance(ctx context.Context, callID string, status calls.Status) (calls.Record, error) {
	rec, err := c.calls.Update(ctx, callID, func(r *calls.Record) error {
		if !r.Status.CanAdvance(status) {
			return errNoChange
		}
		r.Status = status
		r.UpdatedAt = c.clock().UTC()
		return nil
	})
	if errors.Is(err, errNoChange) {
		return c.get(ctx, callID)
	}
	if err != nil {
		return calls.Record{}, c.lookupErr(err)
	}
	return rec, nil
}

// OnCallCompleted bills ceil(duration/60) minutes at the snapshotted rate and
// closes the call. A call already in a terminal state is returned unchanged.
//
// When the debit cannot be written after retries the call stays open, an
// unbilled_call alert is raised and the error is returned so the provider
// redelivers the callback.
func (c *Coordinator) OnCallCompleted(ctx context.Context, callID string, durationSeconds int) (calls.Record, error) {
	if durationSeconds < 0 {
		return calls.Record{}, fmt.Errorf("%w: negative duration", ErrInvalidInput)
	}
	rec, err := c.get(ctx, callID)
	if err != nil {
		return calls.Record{}, err
	}
	log := logger.From(ctx).With("call_id", callID)
	if rec.Status.Terminal() {
		metrics.CallSettlements.WithLabelValues("duplicate").Inc()
		log.Info("completion ignored for settled call", "status", rec.Status)
		return rec, nil
	}

	minutes := pricing.BillableMinutes(durationSeconds)
	cost := pricing.CallCost(rec.RatePerMinute, minutes)
	charged := decimal.Zero

	switch {
	case rec.IsTrial():
		if _, err := c.trials.RecordUsage(ctx, rec.TrialFingerprint, rec.TrialIP, callID, durationSeconds); err != nil {
			log.Warn("trial usage not recorded", "fingerprint", rec.TrialFingerprint, "error", err)
		}
	case cost.IsPositive():
		res, err := c.debit(ctx, rec.UserID, cost, callID)
		if err != nil {
			metrics.CallSettlements.WithLabelValues("unbilled").Inc()
			log.Error("call debit failed", "user_id", rec.UserID, "cost", cost.String(), "error", err)
			_ = alerting.Raise(ctx, c.alerts, alerting.Alert{
				Kind:       alerting.KindUnbilledCall,
				CallID:     callID,
				UserID:     rec.UserID,
				Amount:     cost,
				Error:      err.Error(),
				OccurredAt: c.clock().UTC(),
			})
			return rec, fmt.Errorf("bill call %s: %w", callID, err)
		}
		charged = res.Transaction.Amount.Abs()
	}

	out, err := c.calls.Update(ctx, callID, func(r *calls.Record) error {
		if r.Status.Terminal() {
			return errNoChange
		}
		now := c.clock().UTC()
		r.Status = calls.StatusCompleted
		r.DurationSeconds = durationSeconds
		r.CreditsCharged = charged
		r.UpdatedAt = now
		r.EndedAt = &now
		return nil
	})
	if errors.Is(err, errNoChange) {
		metrics.CallSettlements.WithLabelValues("duplicate").Inc()
		return c.get(ctx, callID)
	}
	if err != nil {
		return calls.Record{}, c.lookupErr(err)
	}

	metrics.CallSettlements.WithLabelValues("completed").Inc()
	c.releaseCallSlot(ctx, out)
	log.Info("call completed",
		"duration_seconds", durationSeconds,
		"billable_minutes", minutes,
		"cost", cost.String(),
		"charged", charged.String(),
	)
	return out, nil
}

// OnCallFailed closes the call with a zero charge. Failed calls are free.
func (c *Coordinator) OnCallFailed(ctx context.Context, callID string) (calls.Record, error) {
	rec, err := c.calls.Update(ctx, callID, func(r *calls.Record) error {
		if r.Status.Terminal() {
			return errNoChange
		}
		now := c.clock().UTC()
		r.Status = calls.StatusFailed
		r.CreditsCharged = decimal.Zero
		r.UpdatedAt = now
		r.EndedAt = &now
		return nil
	})
	if errors.Is(err, errNoChange) {
		metrics.CallSettlements.WithLabelValues("duplicate").Inc()
		return c.get(ctx, callID)
	}
	if err != nil {
		return calls.Record{}, c.lookupErr(err)
	}
	metrics.CallSettlements.WithLabelValues("failed").Inc()
	c.releaseCallSlot(ctx, rec)
	logger.From(ctx).Info("call failed", "call_id", callID)
	return rec, nil
}

// debit retries transient ledger failures with exponential backoff. The call
// already happened, so caller cancellation does not abort billing.
func (c *Coordinator) debit(ctx context.Context, userID string, cost decimal.Decimal, callID string) (ledger.PostResult, error) {
	ctx = context.WithoutCancel(ctx)
	var out ledger.PostResult
	b := retry.WithMaxRetries(c.debitRetries, retry.NewExponential(c.retryBase))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		res, err := c.ledger.Debit(ctx, userID, cost, ledger.KindCallDeduction, callID)
		if err != nil {
			if errors.Is(err, ledger.ErrStorageUnavailable) {
				logger.From(ctx).Warn("call debit attempt failed", "call_id", callID, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		out = res
		return nil
	})
	return out, err
}

// acquireSlot takes a concurrent-call slot. The cap is a soft limit: when the
// slot store itself fails the call proceeds.
func (c *Coordinator) acquireSlot(ctx context.Context, slots CallSlots, owner string) error {
	if slots == nil {
		return nil
	}
	err := slots.Acquire(ctx, owner)
	switch {
	case err == nil:
		return nil
	case isSlotUnavailable(err):
		return ErrTooManyCalls
	default:
		logger.From(ctx).Warn("call slot acquire failed", "owner", owner, "error", err)
		return nil
	}
}

func (c *Coordinator) releaseSlot(ctx context.Context, slots CallSlots, owner string) {
	if slots == nil || owner == "" {
		return
	}
	if err := slots.Release(context.WithoutCancel(ctx), owner); err != nil {
		logger.From(ctx).Warn("call slot release failed", "owner", owner, "error", err)
	}
}

// releaseCallSlot frees whichever slot a closed call was holding.
func (c *Coordinator) releaseCallSlot(ctx context.Context, rec calls.Record) {
	if rec.IsTrial() {
		c.releaseSlot(ctx, c.trialSlots, trialSlotKey(rec.TrialFingerprint))
		return
	}
	c.releaseSlot(ctx, c.slots, rec.UserID)
}

func trialSlotKey(fingerprint string) string {
	if fingerprint == "" {
		return ""
	}
	return "trial:" + fingerprint
}

func (c *Coordinator) resolve(ctx context.Context, destination string) (rates.Result, error) {
	if strings.TrimSpace(destination) == "" {
		return rates.Result{}, fmt.Errorf("%w: destination required", ErrInvalidInput)
	}
	res := c.rates.Resolve(ctx, destination)
	if res.Tier == rates.TierInvalid {
		return rates.Result{}, fmt.Errorf("%w: destination %q is not a dialable number", ErrInvalidInput, destination)
	}
	return res, nil
}

// Lookup returns the stored call record.
func (c *Coordinator) Lookup(ctx context.Context, callID string) (calls.Record, error) {
	return c.get(ctx, callID)
}

func (c *Coordinator) get(ctx context.Context, callID string) (calls.Record, error) {
	rec, err := c.calls.Get(ctx, callID)
	if err != nil {
		return calls.Record{}, c.lookupErr(err)
	}
	return rec, nil
}

func (c *Coordinator) lookupErr(err error) error {
	if errors.Is(err, calls.ErrNotFound) {
		return ErrCallNotFound
	}
	return err
}

var errNoChange = errors.New("billing: no state change")
