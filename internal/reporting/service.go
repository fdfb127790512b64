package reporting

import (
	"context"
	"errors"
	"time"

	"zkypee/internal/calls"
	"zkypee/internal/ledger"

	"github.com/shopspring/decimal"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository reads the immutable sources reports are built from.
// Every method is scoped to one user.
type Repository interface {
	ListCalls(ctx context.Context, userID string, from, to time.Time) ([]calls.Record, error)
	ListTransactions(ctx context.Context, userID string, from, to time.Time) ([]ledger.Transaction, error)
}

type callLister interface {
	ListByUser(ctx context.Context, userID string, from, to time.Time) ([]calls.Record, error)
}

type transactionLister interface {
	Transactions(ctx context.Context, userID string, from, to time.Time) ([]ledger.Transaction, error)
}

// StoreRepo reads reports from the live call store and ledger.
type StoreRepo struct {
	Calls  callLister
	Ledger transactionLister
}

func (r StoreRepo) ListCalls(ctx context.Context, userID string, from, to time.Time) ([]calls.Record, error) {
	return r.Calls.ListByUser(ctx, userID, from, to)
}

func (r StoreRepo) ListTransactions(ctx context.Context, userID string, from, to time.Time) ([]ledger.Transaction, error) {
	return r.Ledger.Transactions(ctx, userID, from, to)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func validRange(r TimeRange) bool {
	return r.From.IsZero() || r.To.IsZero() || r.To.After(r.From)
}

func (s *Service) CallsSummary(ctx context.Context, userID string, rng TimeRange) (CallsSummary, error) {
	if userID == "" || !validRange(rng) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, userID, rng.From, rng.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{UserID: userID, TotalCharged: decimal.Zero, ByCountry: map[string]decimal.Decimal{}}
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		out.TotalCharged = out.TotalCharged.Add(c.CreditsCharged)
		switch c.Status {
		case calls.StatusCompleted:
			out.CompletedCalls++
			country := c.Country
			if country == "" {
				country = "Unknown"
			}
			out.ByCountry[country] = out.ByCountry[country].Add(c.CreditsCharged)
		case calls.StatusFailed:
			out.FailedCalls++
		default:
			out.InProgressCalls++
		}
	}
	if out.CompletedCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.CompletedCalls
	}
	return out, nil
}

func (s *Service) SpendSummary(ctx context.Context, userID string, rng TimeRange) (SpendSummary, error) {
	if userID == "" || !validRange(rng) {
		return SpendSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return SpendSummary{}, errors.New("reporting: repository not configured")
	}

	txs, err := s.repo.ListTransactions(ctx, userID, rng.From, rng.To)
	if err != nil {
		return SpendSummary{}, err
	}

	out := SpendSummary{
		UserID:       userID,
		TotalCredits: decimal.Zero,
		TotalDebits:  decimal.Zero,
		ByKind:       map[string]decimal.Decimal{},
	}
	for _, t := range txs {
		if t.Amount.IsPositive() {
			out.TotalCredits = out.TotalCredits.Add(t.Amount)
		} else {
			out.TotalDebits = out.TotalDebits.Add(t.Amount.Neg())
		}
		out.ByKind[string(t.Kind)] = out.ByKind[string(t.Kind)].Add(t.Amount)
	}
	out.NetDelta = out.TotalCredits.Sub(out.TotalDebits)
	return out, nil
}

// UsageSummary combines the call and spend reports. Zero range bounds are open.
func (s *Service) UsageSummary(ctx context.Context, userID string, rng TimeRange) (UsageSummary, error) {
	cs, err := s.CallsSummary(ctx, userID, rng)
	if err != nil {
		return UsageSummary{}, err
	}
	ss, err := s.SpendSummary(ctx, userID, rng)
	if err != nil {
		return UsageSummary{}, err
	}
	return UsageSummary{Range: rng, Calls: cs, Spend: ss}, nil
}
