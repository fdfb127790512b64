package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"zkypee/internal/calls"
	"zkypee/internal/ledger"
)

// MemoryRepo is an in-memory reporting repository for tests.
// Reads are scoped to the requested user.
type MemoryRepo struct {
	mu sync.Mutex

	Calls        []calls.Record
	Transactions []ledger.Transaction
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

func (r *MemoryRepo) ListCalls(ctx context.Context, userID string, from, to time.Time) ([]calls.Record, error) {
	if userID == "" {
		return nil, errors.New("user_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.Record, 0)
	for _, c := range r.Calls {
		if c.UserID == userID && inRange(c.CreatedAt, from, to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListTransactions(ctx context.Context, userID string, from, to time.Time) ([]ledger.Transaction, error) {
	if userID == "" {
		return nil, errors.New("user_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ledger.Transaction, 0)
	for _, t := range r.Transactions {
		if t.UserID == userID && inRange(t.CreatedAt, from, to) {
			out = append(out, t)
		}
	}
	return out, nil
}
