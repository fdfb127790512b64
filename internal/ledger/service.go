package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zkypee/pkg/logger"
	"zkypee/pkg/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service is the only writer of credit balances.
//
// Money invariants:
// - No balance change without a transaction in the log.
// - The log is append-only.
// - Balances never go negative; debits are clamped at zero and the log records
//   the amount actually collected.
type Service struct {
	repo            Repository
	startingBalance decimal.Decimal
	storeTimeout    time.Duration
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

// DefaultStartingBalance is granted to accounts created on first use.
var DefaultStartingBalance = decimal.RequireFromString("5.00")

type Options struct {
	StartingBalance decimal.Decimal
	// StoreTimeout bounds each repository call; zero disables the bound.
	StoreTimeout time.Duration
}

func NewService(repo Repository, opts Options) *Service {
	return &Service{
		repo:            repo,
		startingBalance: decimal.Max(opts.StartingBalance, decimal.Zero),
		storeTimeout:    opts.StoreTimeout,
		clock:           time.Now,
	}
}

var (
	ErrInvalidArgument    = errors.New("ledger: invalid argument")
	ErrInvalidAmount      = errors.New("ledger: amount must be positive")
	ErrAccountNotFound    = errors.New("ledger: account not found")
	ErrStorageUnavailable = errors.New("ledger: storage unavailable")
)

// Account returns the user's account, provisioning it with the starting balance on first use.
func (s *Service) Account(ctx context.Context, userID string) (Account, error) {
	if userID == "" {
		return Account{}, ErrInvalidArgument
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	a, err := s.repo.EnsureAccount(ctx, userID, s.startingBalance, s.clock().UTC())
	if err != nil {
		return Account{}, storageErr(err)
	}
	return a, nil
}

func (s *Service) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	a, err := s.Account(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	return a.Balance, nil
}

// HasSufficientCredits reports balance >= minutes * rate. It never mutates.
func (s *Service) HasSufficientCredits(ctx context.Context, userID string, minutes int, ratePerMinute decimal.Decimal) (bool, error) {
	if minutes < 0 || ratePerMinute.IsNegative() {
		return false, ErrInvalidArgument
	}
	bal, err := s.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	need := ratePerMinute.Mul(decimal.NewFromInt(int64(minutes)))
	return bal.GreaterThanOrEqual(need), nil
}

// Debit removes up to amount from the balance. If amount exceeds the balance the
// balance becomes zero and the transaction records only what was collected.
// Repeating a debit with the same kind and referenceID returns the original result.
func (s *Service) Debit(ctx context.Context, userID string, amount decimal.Decimal, kind Kind, referenceID string) (PostResult, error) {
	return s.post(ctx, userID, Debit, amount, kind, referenceID)
}

// Credit adds amount to the balance. Repeating a credit with the same kind and
// referenceID returns the original result without crediting twice.
func (s *Service) Credit(ctx context.Context, userID string, amount decimal.Decimal, kind Kind, referenceID string) (PostResult, error) {
	return s.post(ctx, userID, Credit, amount, kind, referenceID)
}

func (s *Service) post(ctx context.Context, userID string, dir Direction, amount decimal.Decimal, kind Kind, referenceID string) (PostResult, error) {
	if userID == "" || !kind.Valid() {
		return PostResult{}, ErrInvalidArgument
	}
	if !amount.IsPositive() {
		return PostResult{}, ErrInvalidAmount
	}
	if _, err := s.Account(ctx, userID); err != nil {
		return PostResult{}, err
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.repo.Post(ctx, Posting{
		ID:          uuid.NewString(),
		UserID:      userID,
		Direction:   dir,
		Kind:        kind,
		Amount:      amount,
		ReferenceID: referenceID,
		At:          s.clock().UTC(),
	})
	if err != nil {
		metrics.LedgerPostings.WithLabelValues(string(kind), "error").Inc()
		return PostResult{}, storageErr(err)
	}

	log := logger.From(ctx)
	switch {
	case res.Duplicate:
		metrics.LedgerPostings.WithLabelValues(string(kind), "duplicate").Inc()
		log.Info("ledger posting already applied", "kind", kind, "reference_id", referenceID)
	case res.Shortfall.IsPositive():
		metrics.LedgerPostings.WithLabelValues(string(kind), "clamped").Inc()
		log.Warn("debit clamped at zero balance",
			"kind", kind, "reference_id", referenceID,
			"requested", amount.String(), "shortfall", res.Shortfall.String())
	default:
		metrics.LedgerPostings.WithLabelValues(string(kind), "ok").Inc()
	}
	return res, nil
}

// Transactions lists the user's log in creation order.
func (s *Service) Transactions(ctx context.Context, userID string, from, to time.Time) ([]Transaction, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()

	txs, err := s.repo.ListTransactions(ctx, userID, from, to)
	if err != nil {
		return nil, storageErr(err)
	}
	return txs, nil
}

// reconcileAttempts bounds how often Reconcile rereads when postings land mid-read.
const reconcileAttempts = 3

// Reconcile replays the user's log from zero and compares it to the balance.
// The account is read before and after the log; if a posting landed in
// between, the read is repeated so concurrent traffic is not reported as drift.
func (s *Service) Reconcile(ctx context.Context, userID string) (Reconciliation, error) {
	var out Reconciliation
	for attempt := 0; attempt < reconcileAttempts; attempt++ {
		before, err := s.Account(ctx, userID)
		if err != nil {
			return Reconciliation{}, err
		}
		txs, err := s.Transactions(ctx, userID, time.Time{}, time.Time{})
		if err != nil {
			return Reconciliation{}, err
		}
		after, err := s.Account(ctx, userID)
		if err != nil {
			return Reconciliation{}, err
		}

		sum := decimal.Zero
		for _, t := range txs {
			sum = sum.Add(t.Amount)
		}
		out = Reconciliation{
			UserID:       userID,
			Balance:      after.Balance,
			LedgerSum:    sum,
			Transactions: len(txs),
			Consistent:   sum.Equal(after.Balance),
		}
		if before.Balance.Equal(after.Balance) && before.UpdatedAt.Equal(after.UpdatedAt) {
			return out, nil
		}
		logger.From(ctx).Debug("reconcile raced a posting, rereading", "user_id", userID, "attempt", attempt+1)
	}
	return out, nil
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

func storageErr(err error) error {
	if errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrInvalidArgument) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}
