package calls

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record is the billing view of one call, keyed by the provider's call id.
//
// UserID is empty for trial calls; those carry the trial identity instead.
// RatePerMinute is captured when the call starts and is the rate the call is billed at.
// MaxCallSeconds is the provider time limit quoted at start; zero means none.
type Record struct {
	CallID           string          `json:"call_id" db:"call_id"`
	UserID           string          `json:"user_id,omitempty" db:"user_id"`
	TrialFingerprint string          `json:"trial_fingerprint,omitempty" db:"trial_fingerprint"`
	TrialIP          string          `json:"trial_ip,omitempty" db:"trial_ip"`
	Destination      string          `json:"destination" db:"destination"`
	Country          string          `json:"country,omitempty" db:"country"`
	Status           Status          `json:"status" db:"status"`
	DurationSeconds  int             `json:"duration_seconds" db:"duration_seconds"`
	RatePerMinute    decimal.Decimal `json:"rate_per_minute" db:"rate_per_minute"`
	CreditsCharged   decimal.Decimal `json:"credits_charged" db:"credits_charged"`
	MaxCallSeconds   int64           `json:"max_call_seconds" db:"max_call_seconds"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
	EndedAt          *time.Time      `json:"ended_at,omitempty" db:"ended_at"`
}

func (r Record) IsTrial() bool { return r.UserID == "" }

type Status string

const (
	StatusInitiated Status = "initiated"
	StatusRinging   Status = "ringing"
	StatusAnswered  Status = "answered"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusInitiated, StatusRinging, StatusAnswered, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) rank() int {
	switch s {
	case StatusInitiated:
		return 0
	case StatusRinging:
		return 1
	case StatusAnswered:
		return 2
	default:
		return 3
	}
}

// CanAdvance reports whether a call may move from s to next.
// Progress is forward-only (initiated -> ringing -> answered -> completed),
// failed is reachable from any non-terminal state, and terminal states are final.
func (s Status) CanAdvance(next Status) bool {
	if s.Terminal() || !next.Valid() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return next.rank() > s.rank()
}
