// Package pricing turns call durations and per-minute rates into charges.
package pricing

import (
	"math"

	"github.com/shopspring/decimal"
)

// IncrementSeconds is the billing increment: every started minute is charged in full.
const IncrementSeconds = 60

// BillableMinutes rounds a call duration up to whole minutes. Zero or negative
// durations bill nothing.
func BillableMinutes(durationSeconds int) int {
	if durationSeconds <= 0 {
		return 0
	}
	return (durationSeconds + IncrementSeconds - 1) / IncrementSeconds
}

// CallCost is rate * minutes.
func CallCost(ratePerMinute decimal.Decimal, minutes int) decimal.Decimal {
	if minutes <= 0 {
		return decimal.Zero
	}
	return ratePerMinute.Mul(decimal.NewFromInt(int64(minutes)))
}

// Estimate is how long a balance lasts at a given rate.
type Estimate struct {
	Minutes   int64 `json:"minutes"`
	Unlimited bool  `json:"unlimited"`
}

// MaxAffordableMinutes is floor(balance / rate). A zero rate is unlimited.
func MaxAffordableMinutes(balance, ratePerMinute decimal.Decimal) Estimate {
	if !ratePerMinute.IsPositive() {
		return Estimate{Unlimited: true}
	}
	if !balance.IsPositive() {
		return Estimate{}
	}
	q := balance.Div(ratePerMinute).Floor()
	if !q.LessThan(decimal.NewFromInt(math.MaxInt64)) {
		return Estimate{Minutes: math.MaxInt64}
	}
	return Estimate{Minutes: q.IntPart()}
}

// MaxCallSeconds converts an estimate to a call time limit, 0 meaning no limit.
func (e Estimate) MaxCallSeconds() int64 {
	if e.Unlimited || e.Minutes > math.MaxInt64/IncrementSeconds {
		return 0
	}
	return e.Minutes * IncrementSeconds
}
