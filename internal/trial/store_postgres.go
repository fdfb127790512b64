package trial

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"zkypee/pkg/utils"
)

// PostgresStore keeps allowances in trial_allowances and the per-call
// idempotency keys in trial_usage.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const trialColumns = `device_fingerprint, ip_address, calls_used, total_duration_seconds, last_call_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (Record, error) {
	var (
		r    Record
		last sql.NullTime
	)
	if err := s.Scan(&r.DeviceFingerprint, &r.IPAddress, &r.CallsUsed, &r.TotalDurationSeconds, &last, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	if last.Valid {
		t := last.Time
		r.LastCallAt = &t
	}
	return r, nil
}

func (s *PostgresStore) FindByFingerprint(ctx context.Context, fingerprint string) (Record, error) {
	q := `SELECT ` + trialColumns + ` FROM trial_allowances WHERE device_fingerprint = $1`
	return scanRecord(s.db.QueryRowContext(ctx, q, fingerprint))
}

func (s *PostgresStore) FindByIP(ctx context.Context, ip string) (Record, error) {
	q := `SELECT ` + trialColumns + `
FROM trial_allowances
WHERE ip_address = $1
ORDER BY COALESCE(last_call_at, created_at) DESC
LIMIT 1`
	return scanRecord(s.db.QueryRowContext(ctx, q, ip))
}

func (s *PostgresStore) Provision(ctx context.Context, fingerprint, ip string, now time.Time) error {
	const q = `
INSERT INTO trial_allowances (device_fingerprint, ip_address, calls_used, total_duration_seconds, created_at)
VALUES ($1, $2, 0, 0, $3)
ON CONFLICT (device_fingerprint) DO NOTHING
`
	_, err := s.db.ExecContext(ctx, q, fingerprint, ip, now)
	return err
}

func (s *PostgresStore) RecordUsage(ctx context.Context, u Usage) (Record, error) {
	var out Record
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		if u.CallID != "" {
			const mark = `
INSERT INTO trial_usage (call_id, device_fingerprint, duration_seconds, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (call_id) DO NOTHING
`
			res, err := tx.ExecContext(ctx, mark, u.CallID, u.DeviceFingerprint, u.DurationSeconds, u.At)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				q := `SELECT ` + trialColumns + ` FROM trial_allowances WHERE device_fingerprint = $1`
				r, err := scanRecord(tx.QueryRowContext(ctx, q, u.DeviceFingerprint))
				if err != nil && !errors.Is(err, ErrNotFound) {
					return err
				}
				out = r
				return nil
			}
		}

		q := `
INSERT INTO trial_allowances (device_fingerprint, ip_address, calls_used, total_duration_seconds, last_call_at, created_at)
VALUES ($1, $2, 1, $3, $4, $4)
ON CONFLICT (device_fingerprint) DO UPDATE
SET calls_used = trial_allowances.calls_used + 1,
    total_duration_seconds = trial_allowances.total_duration_seconds + EXCLUDED.total_duration_seconds,
    last_call_at = EXCLUDED.last_call_at,
    ip_address = COALESCE(NULLIF(EXCLUDED.ip_address, ''), trial_allowances.ip_address)
RETURNING ` + trialColumns
		r, err := scanRecord(tx.QueryRowContext(ctx, q, u.DeviceFingerprint, u.IPAddress, max(u.DurationSeconds, 0), u.At))
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	return out, err
}
