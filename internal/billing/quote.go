package billing

import (
	"github.com/shopspring/decimal"
)

// Quote is the answer to "may this caller dial this number, and for how long".
type Quote struct {
	Allowed             bool            `json:"allowed"`
	RatePerMinute       decimal.Decimal `json:"rate_per_minute"`
	EstimatedMaxMinutes int64           `json:"estimated_max_minutes"`
	Unlimited           bool            `json:"unlimited,omitempty"`
	Country             string          `json:"country"`
	CountryCode         string          `json:"country_code,omitempty"`
	NormalizedNumber    string          `json:"normalized_number,omitempty"`
	Balance             decimal.Decimal `json:"balance"`
	Reason              string          `json:"reason,omitempty"`
}

// MaxCallSeconds is the hard duration limit to hand the provider. Zero means no limit.
func (q Quote) MaxCallSeconds() int64 {
	if q.Unlimited {
		return 0
	}
	return q.EstimatedMaxMinutes * 60
}

// TrialQuote answers the same question for an unauthenticated caller.
type TrialQuote struct {
	Allowed          bool   `json:"allowed"`
	CallsUsed        int    `json:"calls_used"`
	Remaining        int    `json:"remaining"`
	MaxCallSeconds   int64  `json:"max_call_seconds"`
	Country          string `json:"country"`
	NormalizedNumber string `json:"normalized_number,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

const (
	ReasonInsufficientCredits = "insufficient_credits"
	ReasonBalanceUnavailable  = "balance_unavailable"
	ReasonTrialExhausted      = "trial_exhausted"
	ReasonTrialUnavailable    = "trial_unavailable"
)

// Placed is the result of a successfully initiated call.
type Placed struct {
	CallID string `json:"call_id"`
	Quote
}
