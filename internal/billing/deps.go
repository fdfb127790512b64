package billing

import (
	"context"
	"errors"

	"zkypee/internal/ledger"
	"zkypee/internal/rates"
	"zkypee/internal/trial"
	"zkypee/pkg/utils"

	"github.com/shopspring/decimal"
)

type RateResolver interface {
	Resolve(ctx context.Context, number string) rates.Result
}

type Ledger interface {
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	Debit(ctx context.Context, userID string, amount decimal.Decimal, kind ledger.Kind, referenceID string) (ledger.PostResult, error)
}

type TrialTracker interface {
	CheckAvailability(ctx context.Context, fingerprint, ip string) (trial.Availability, error)
	RecordUsage(ctx context.Context, fingerprint, ip, callID string, durationSeconds int) (trial.Record, error)
}

// CallPlacer connects calls through an external provider and returns its call id.
type CallPlacer interface {
	InitiateCall(ctx context.Context, destination, callerID string) (string, error)
}

// CallSlots caps concurrent calls per user. A slot is held from placement
// until the call reaches a terminal state.
type CallSlots interface {
	Acquire(ctx context.Context, owner string) error
	Release(ctx context.Context, owner string) error
}

var (
	ErrTooManyCalls        = errors.New("billing: too many concurrent calls")
	ErrInvalidInput        = errors.New("billing: invalid input")
	ErrInsufficientCredits = errors.New("billing: insufficient credits")
	ErrTrialExhausted      = errors.New("billing: trial allowance exhausted")
	ErrCallNotFound        = errors.New("billing: call not found")
	ErrDuplicateCall       = errors.New("billing: call already initiated")
	ErrNoPlacer            = errors.New("billing: call placement not configured")
)

func isInvalidTrialInput(err error) bool {
	return errors.Is(err, trial.ErrInvalidInput)
}

func isSlotUnavailable(err error) bool {
	return errors.Is(err, utils.ErrSlotUnavailable)
}
