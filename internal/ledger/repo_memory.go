package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryRepo is an in-memory Repository for tests and local runs.
// A single mutex serializes every posting.
type MemoryRepo struct {
	mu       sync.Mutex
	accounts map[string]Account
	txs      []Transaction

	// Fail, when set, is returned by every call. Used to simulate outages.
	Fail error
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{accounts: map[string]Account{}}
}

func (r *MemoryRepo) EnsureAccount(_ context.Context, userID string, opening decimal.Decimal, now time.Time) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return Account{}, r.Fail
	}

	if a, ok := r.accounts[userID]; ok {
		return a, nil
	}
	a := Account{UserID: userID, Balance: decimal.Zero, CreatedAt: now, UpdatedAt: now}
	if opening.IsPositive() {
		r.txs = append(r.txs, Transaction{
			ID:          uuid.NewString(),
			UserID:      userID,
			Amount:      opening,
			Kind:        KindAdjustment,
			ReferenceID: OpeningGrantReference,
			CreatedAt:   now,
		})
		a.Balance = opening
	}
	r.accounts[userID] = a
	return a, nil
}

func (r *MemoryRepo) Post(_ context.Context, p Posting) (PostResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return PostResult{}, r.Fail
	}

	a, ok := r.accounts[p.UserID]
	if !ok {
		return PostResult{}, ErrAccountNotFound
	}
	if p.ReferenceID != "" {
		for _, t := range r.txs {
			if t.UserID == p.UserID && t.Kind == p.Kind && t.ReferenceID == p.ReferenceID {
				return PostResult{Transaction: t, Balance: a.Balance, Duplicate: true}, nil
			}
		}
	}

	signed, shortfall := settle(a.Balance, p)
	t := Transaction{
		ID:          p.ID,
		UserID:      p.UserID,
		Amount:      signed,
		Kind:        p.Kind,
		ReferenceID: p.ReferenceID,
		CreatedAt:   p.At,
	}
	r.txs = append(r.txs, t)
	a.Balance = a.Balance.Add(signed)
	a.UpdatedAt = p.At
	r.accounts[p.UserID] = a
	return PostResult{Transaction: t, Balance: a.Balance, Shortfall: shortfall}, nil
}

func (r *MemoryRepo) ListTransactions(_ context.Context, userID string, from, to time.Time) ([]Transaction, error) {
	if userID == "" {
		return nil, errors.New("user_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		return nil, r.Fail
	}

	out := make([]Transaction, 0)
	for _, t := range r.txs {
		if t.UserID != userID {
			continue
		}
		if !from.IsZero() && t.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && !t.CreatedAt.Before(to) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// SetBalance overwrites a projection without a log entry. Tests use it to
// construct inconsistent states for Reconcile.
func (r *MemoryRepo) SetBalance(userID string, b decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.accounts[userID]
	a.UserID = userID
	a.Balance = b
	r.accounts[userID] = a
}
