package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository persists accounts and their append-only transaction log.
//
// Implementations must serialize Post per user (row lock or equivalent) and
// perform the idempotency lookup, the log append and the balance update as
// one atomic unit.
type Repository interface {
	// EnsureAccount returns the account, creating it with an opening grant
	// of opening when absent. Concurrent first calls create exactly one row.
	EnsureAccount(ctx context.Context, userID string, opening decimal.Decimal, now time.Time) (Account, error)

	// Post applies p to an existing account. When p.ReferenceID is set and a
	// transaction with the same (user, kind, reference) exists, that transaction
	// is returned with Duplicate=true and nothing is written.
	Post(ctx context.Context, p Posting) (PostResult, error)

	// ListTransactions returns the user's log in creation order. Zero times are unbounded.
	ListTransactions(ctx context.Context, userID string, from, to time.Time) ([]Transaction, error)
}

// settle computes the signed amount a posting writes given the locked balance.
// Debits are clamped so the balance never goes below zero.
func settle(balance decimal.Decimal, p Posting) (signed, shortfall decimal.Decimal) {
	if p.Direction == Credit {
		return p.Amount, decimal.Zero
	}
	collected := decimal.Min(p.Amount, decimal.Max(balance, decimal.Zero))
	return collected.Neg(), p.Amount.Sub(collected)
}
