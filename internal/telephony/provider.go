package telephony

import (
	"context"
	"errors"

	"zkypee/internal/calls"
)

// Provider places outbound calls. Business logic never calls a provider SDK
// directly; it goes through this interface.
type Provider interface {
	Name() string
	HealthCheck(ctx context.Context) error
	InitiateCall(ctx context.Context, destination, callerID string) (string, error)
}

// StatusEvent is a provider call-progress callback in internal terms.
type StatusEvent struct {
	CallID          string
	Status          calls.Status
	DurationSeconds int
	// ProviderStatus is the raw status string, kept for logs.
	ProviderStatus string
}

// VoiceRequest is a provider request for call instructions.
type VoiceRequest struct {
	CallID      string
	From        string
	To          string
	Direction   string
	Fingerprint string
	IP          string
}

// ClientIdentity returns the browser client identity for client-originated calls.
func (v VoiceRequest) ClientIdentity() (string, bool) {
	const prefix = "client:"
	if len(v.From) > len(prefix) && v.From[:len(prefix)] == prefix {
		return v.From[len(prefix):], true
	}
	return "", false
}

var (
	ErrNotConfigured   = errors.New("telephony: provider not configured")
	ErrInvalidCallback = errors.New("telephony: invalid callback")
)
