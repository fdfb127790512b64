package trial

import (
	"errors"
	"time"
)

// MaxTrialCalls is the number of free calls an unauthenticated device may place.
const MaxTrialCalls = 2

// Record tracks trial usage for one device identity.
// CallsUsed never decreases.
type Record struct {
	DeviceFingerprint    string     `json:"device_fingerprint" db:"device_fingerprint"`
	IPAddress            string     `json:"ip_address" db:"ip_address"`
	CallsUsed            int        `json:"calls_used" db:"calls_used"`
	TotalDurationSeconds int        `json:"total_duration_seconds" db:"total_duration_seconds"`
	LastCallAt           *time.Time `json:"last_call_at,omitempty" db:"last_call_at"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
}

type Availability struct {
	Available bool `json:"available"`
	CallsUsed int  `json:"calls_used"`
	Remaining int  `json:"remaining"`
}

func availabilityOf(callsUsed int) Availability {
	return Availability{
		Available: callsUsed < MaxTrialCalls,
		CallsUsed: callsUsed,
		Remaining: max(MaxTrialCalls-callsUsed, 0),
	}
}

// Usage is one completed trial call.
type Usage struct {
	DeviceFingerprint string
	IPAddress         string
	CallID            string
	DurationSeconds   int
	At                time.Time
}

var (
	ErrInvalidInput = errors.New("trial: invalid input")
	ErrNotFound     = errors.New("trial: record not found")
)
