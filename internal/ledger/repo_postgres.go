package ledger

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"zkypee/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostgresRepo stores accounts in credit_accounts and the log in credit_transactions.
// credit_transactions carries a partial unique index on (user_id, kind, reference_id)
// for non-empty references, which backs the idempotency lookup.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) EnsureAccount(ctx context.Context, userID string, opening decimal.Decimal, now time.Time) (Account, error) {
	var out Account
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const ins = `
INSERT INTO credit_accounts (user_id, balance, created_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (user_id) DO NOTHING
`
		res, err := tx.ExecContext(ctx, ins, userID, decimal.Max(opening, decimal.Zero), now)
		if err != nil {
			return err
		}
		created, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if created == 1 && opening.IsPositive() {
			if err := insertTransaction(ctx, tx, Transaction{
				ID:          uuid.NewString(),
				UserID:      userID,
				Amount:      opening,
				Kind:        KindAdjustment,
				ReferenceID: OpeningGrantReference,
				CreatedAt:   now,
			}); err != nil {
				return err
			}
		}
		a, err := selectAccount(ctx, tx, userID, false)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

func (r *PostgresRepo) Post(ctx context.Context, p Posting) (PostResult, error) {
	var out PostResult
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the account row to serialize concurrent postings per user.
		a, err := selectAccount(ctx, tx, p.UserID, true)
		if err != nil {
			return err
		}

		if p.ReferenceID != "" {
			existing, ok, err := findByReference(ctx, tx, p.UserID, p.Kind, p.ReferenceID)
			if err != nil {
				return err
			}
			if ok {
				out = PostResult{Transaction: existing, Balance: a.Balance, Duplicate: true}
				return nil
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
		if err := insertTransaction(ctx, tx, t); err != nil {
			return err
		}

		const upd = `
UPDATE credit_accounts
SET balance = balance + $2, updated_at = $3
WHERE user_id = $1
RETURNING balance
`
		var bal decimal.Decimal
		if err := tx.QueryRowContext(ctx, upd, p.UserID, signed, p.At).Scan(&bal); err != nil {
			return err
		}
		out = PostResult{Transaction: t, Balance: bal, Shortfall: shortfall}
		return nil
	})
	if err != nil && utils.IsUniqueViolation(err) {
		// Lost a race on the reference index despite the row lock; the first write wins.
		return r.lookupDuplicate(ctx, p)
	}
	return out, err
}

func (r *PostgresRepo) lookupDuplicate(ctx context.Context, p Posting) (PostResult, error) {
	var out PostResult
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx *sql.Tx) error {
		a, err := selectAccount(ctx, tx, p.UserID, false)
		if err != nil {
			return err
		}
		t, ok, err := findByReference(ctx, tx, p.UserID, p.Kind, p.ReferenceID)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("ledger: unique violation without matching transaction")
		}
		out = PostResult{Transaction: t, Balance: a.Balance, Duplicate: true}
		return nil
	})
	return out, err
}

func (r *PostgresRepo) ListTransactions(ctx context.Context, userID string, from, to time.Time) ([]Transaction, error) {
	const q = `
SELECT id, user_id, amount, kind, reference_id, created_at
FROM credit_transactions
WHERE user_id = $1
  AND ($2::timestamptz IS NULL OR created_at >= $2)
  AND ($3::timestamptz IS NULL OR created_at < $3)
ORDER BY created_at, seq
`
	rows, err := r.db.QueryContext(ctx, q, userID, nullTime(from), nullTime(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Transaction, 0)
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.ReferenceID, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func selectAccount(ctx context.Context, tx *sql.Tx, userID string, forUpdate bool) (Account, error) {
	q := `
SELECT user_id, balance, created_at, updated_at
FROM credit_accounts
WHERE user_id = $1
`
	if forUpdate {
		q += "FOR UPDATE\n"
	}
	var a Account
	if err := tx.QueryRowContext(ctx, q, userID).Scan(&a.UserID, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func findByReference(ctx context.Context, tx *sql.Tx, userID string, kind Kind, ref string) (Transaction, bool, error) {
	const q = `
SELECT id, user_id, amount, kind, reference_id, created_at
FROM credit_transactions
WHERE user_id = $1 AND kind = $2 AND reference_id = $3
LIMIT 1
`
	var t Transaction
	err := tx.QueryRowContext(ctx, q, userID, kind, ref).Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.ReferenceID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Transaction{}, false, nil
		}
		return Transaction{}, false, err
	}
	return t, true, nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, t Transaction) error {
	const q = `
INSERT INTO credit_transactions (id, user_id, amount, kind, reference_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`
	_, err := tx.ExecContext(ctx, q, t.ID, t.UserID, t.Amount, t.Kind, t.ReferenceID, t.CreatedAt)
	return err
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
