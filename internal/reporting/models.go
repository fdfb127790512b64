package reporting

import (
	"time"

	"github.com/shopspring/decimal"
)

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummary aggregates one user's call records.
type CallsSummary struct {
	UserID string `json:"user_id"`

	TotalCalls      int `json:"total_calls"`
	CompletedCalls  int `json:"completed_calls"`
	FailedCalls     int `json:"failed_calls"`
	InProgressCalls int `json:"in_progress_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	TotalCharged decimal.Decimal `json:"total_charged"`
	// ByCountry is total charge per destination country.
	ByCountry map[string]decimal.Decimal `json:"by_country,omitempty"`
}

// SpendSummary aggregates one user's credit transactions.
// Spend is derived from the immutable ledger log.
type SpendSummary struct {
	UserID string `json:"user_id"`

	TotalCredits decimal.Decimal `json:"total_credits"`
	TotalDebits  decimal.Decimal `json:"total_debits"`
	NetDelta     decimal.Decimal `json:"net_delta"`

	// ByKind is the signed sum per transaction kind.
	ByKind map[string]decimal.Decimal `json:"by_kind"`
}

type UsageSummary struct {
	Range TimeRange    `json:"range"`
	Calls CallsSummary `json:"calls"`
	Spend SpendSummary `json:"spend"`
}
