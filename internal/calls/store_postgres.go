package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"zkypee/pkg/utils"
)

// PostgresStore keeps call records in call_records.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `call_id, user_id, trial_fingerprint, trial_ip, destination, country, status,
       duration_seconds, rate_per_minute, credits_charged, max_call_seconds, created_at, updated_at, ended_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (Record, error) {
	var (
		r       Record
		endedAt sql.NullTime
	)
	if err := s.Scan(
		&r.CallID,
		&r.UserID,
		&r.TrialFingerprint,
		&r.TrialIP,
		&r.Destination,
		&r.Country,
		&r.Status,
		&r.DurationSeconds,
		&r.RatePerMinute,
		&r.CreditsCharged,
		&r.MaxCallSeconds,
		&r.CreatedAt,
		&r.UpdatedAt,
		&endedAt,
	); err != nil {
		return Record{}, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		r.EndedAt = &t
	}
	return r, nil
}

func (s *PostgresStore) Create(ctx context.Context, r Record) error {
	const q = `
INSERT INTO call_records (
  call_id, user_id, trial_fingerprint, trial_ip, destination, country, status,
  duration_seconds, rate_per_minute, credits_charged, max_call_seconds, created_at, updated_at, ended_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
`
	_, err := s.db.ExecContext(ctx, q,
		r.CallID, r.UserID, r.TrialFingerprint, r.TrialIP, r.Destination, r.Country, r.Status,
		r.DurationSeconds, r.RatePerMinute, r.CreditsCharged, r.MaxCallSeconds, r.CreatedAt, r.UpdatedAt, r.EndedAt,
	)
	if utils.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (s *PostgresStore) Get(ctx context.Context, callID string) (Record, error) {
	q := `SELECT ` + recordColumns + ` FROM call_records WHERE call_id = $1`
	r, err := scanRecord(s.db.QueryRowContext(ctx, q, callID))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return r, err
}

func (s *PostgresStore) Update(ctx context.Context, callID string, fn UpdateFunc) (Record, error) {
	var out Record
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		q := `SELECT ` + recordColumns + ` FROM call_records WHERE call_id = $1 FOR UPDATE`
		r, err := scanRecord(tx.QueryRowContext(ctx, q, callID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if err := fn(&r); err != nil {
			return err
		}

		const upd = `
UPDATE call_records
SET status = $2, duration_seconds = $3, credits_charged = $4, updated_at = $5, ended_at = $6
WHERE call_id = $1
`
		if _, err := tx.ExecContext(ctx, upd, callID, r.Status, r.DurationSeconds, r.CreditsCharged, r.UpdatedAt, r.EndedAt); err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, from, to time.Time) ([]Record, error) {
	q := `SELECT ` + recordColumns + `
FROM call_records
WHERE user_id = $1
  AND ($2::timestamptz IS NULL OR created_at >= $2)
  AND ($3::timestamptz IS NULL OR created_at < $3)
ORDER BY created_at, call_id`
	rows, err := s.db.QueryContext(ctx, q, userID,
		sql.NullTime{Time: from, Valid: !from.IsZero()},
		sql.NullTime{Time: to, Valid: !to.IsZero()},
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
