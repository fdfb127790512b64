package trial

import (
	"context"
	"errors"
	"strings"
	"time"

	"zkypee/pkg/logger"
)

// Tracker gates unauthenticated trial calls by device fingerprint, falling
// back to IP address when the fingerprint has no record yet.
//
// Identity is client supplied. This is a soft limiter, not an auth boundary.
type Tracker struct {
	store Store
	clock func() time.Time
}

func NewTracker(store Store) *Tracker {
	return &Tracker{store: store, clock: time.Now}
}

// CheckAvailability reports whether the identity may place another trial call.
// A zero-usage record is provisioned when neither key is known.
func (t *Tracker) CheckAvailability(ctx context.Context, fingerprint, ip string) (Availability, error) {
	fingerprint = strings.TrimSpace(fingerprint)
	ip = strings.TrimSpace(ip)
	if fingerprint == "" {
		return Availability{}, ErrInvalidInput
	}

	r, err := t.store.FindByFingerprint(ctx, fingerprint)
	if err == nil {
		return availabilityOf(r.CallsUsed), nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Availability{}, err
	}

	if ip != "" {
		r, err = t.store.FindByIP(ctx, ip)
		if err == nil {
			return availabilityOf(r.CallsUsed), nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Availability{}, err
		}
	}

	if err := t.store.Provision(ctx, fingerprint, ip, t.clock().UTC()); err != nil {
		logger.From(ctx).Warn("trial provision failed", "error", err)
	}
	return availabilityOf(0), nil
}

// RecordUsage accounts one completed trial call. It never denies; the gate
// is CheckAvailability. Repeated call ids are applied once.
func (t *Tracker) RecordUsage(ctx context.Context, fingerprint, ip, callID string, durationSeconds int) (Record, error) {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return Record{}, ErrInvalidInput
	}
	return t.store.RecordUsage(ctx, Usage{
		DeviceFingerprint: fingerprint,
		IPAddress:         strings.TrimSpace(ip),
		CallID:            strings.TrimSpace(callID),
		DurationSeconds:   durationSeconds,
		At:                t.clock().UTC(),
	})
}
