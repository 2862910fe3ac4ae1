package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	apperrors "github.com/Proton-105/candy-heist/internal/errors"
)

const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

// PostgresBackend keeps users and rotations in two tables. Every row a transaction reads is
// locked with SELECT ... FOR UPDATE until the commit.
type PostgresBackend struct {
	db     *sql.DB
	log    *slog.Logger
	policy apperrors.RetryPolicy
}

var _ Backend = (*PostgresBackend)(nil)

// NewPostgresBackend wraps db. The schema is expected to be migrated already.
func NewPostgresBackend(db *sql.DB, log *slog.Logger, maxAttempts int) *PostgresBackend {
	if log == nil {
		log = slog.Default()
	}

	policy := apperrors.DefaultRetryPolicy()
	policy.InitialBackoff = 10 * time.Millisecond
	policy.MaxBackoff = 500 * time.Millisecond
	if maxAttempts > 0 {
		policy.MaxRetries = maxAttempts - 1
	}

	return &PostgresBackend{
		db:     db,
		log:    log.With(slog.String("component", "postgres_store")),
		policy: policy,
	}
}

func (b *PostgresBackend) Name() string {
	return "postgres"
}

func (b *PostgresBackend) Users(ctx context.Context) (map[string]UserRecord, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT user_id, balance, locked_until, notify_opt_out, last_notification_ref
		FROM candy_users`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	users := make(map[string]UserRecord)
	for rows.Next() {
		var (
			id  string
			rec UserRecord
		)
		if err := scanUser(rows, &id, &rec); err != nil {
			return nil, err
		}
		users[id] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return users, nil
}

func (b *PostgresBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *PostgresBackend) Close() error {
	return b.db.Close()
}

func (b *PostgresBackend) atomic(ctx context.Context, work func(src source) (changeSet, error)) error {
	return apperrors.WithRetryPolicy(ctx, b.policy, func() error {
		err := b.attempt(ctx, work)
		if isRetryablePGError(err) {
			b.log.Debug("postgres transaction conflicted, retrying", slog.Any("error", err))
			return apperrors.NewConflictError("candy ledger", err)
		}
		return err
	})
}

func (b *PostgresBackend) attempt(ctx context.Context, work func(src source) (changeSet, error)) (err error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			b.log.Error("rollback error", slog.Any("error", rbErr))
		}
	}()

	changes, err := work(postgresSource{tx: tx})
	if err != nil {
		return err
	}

	for id, rec := range changes.users {
		if _, err = tx.ExecContext(ctx, `
			UPDATE candy_users
			SET balance = $2, locked_until = $3, notify_opt_out = $4,
			    last_notification_ref = $5, updated_at = now()
			WHERE user_id = $1`,
			id, rec.Balance, nullTime(rec.LockedUntil), rec.NotifyOptOut, nullString(rec.LastNotificationRef),
		); err != nil {
			return fmt.Errorf("update user %s: %w", id, err)
		}
	}

	for category, lines := range changes.rotations {
		if lines == nil {
			lines = []string{}
		}
		payload, marshalErr := json.Marshal(lines)
		if marshalErr != nil {
			err = fmt.Errorf("encode rotation %s: %w", category, marshalErr)
			return err
		}
		if _, err = tx.ExecContext(ctx, `
			UPDATE candy_rotations SET remaining = $2, updated_at = now()
			WHERE category = $1`,
			category, string(payload),
		); err != nil {
			return fmt.Errorf("update rotation %s: %w", category, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func isRetryablePGError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected
}

// postgresSource inserts missing rows first so that the row lock also covers creation races.
type postgresSource struct {
	tx *sql.Tx
}

func (s postgresSource) loadUser(ctx context.Context, id string, defaults UserRecord) (UserRecord, bool, error) {
	res, err := s.tx.ExecContext(ctx, `
		INSERT INTO candy_users (user_id, balance, locked_until, notify_opt_out, last_notification_ref)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING`,
		id, defaults.Balance, nullTime(defaults.LockedUntil), defaults.NotifyOptOut, nullString(defaults.LastNotificationRef),
	)
	if err != nil {
		return UserRecord{}, false, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return UserRecord{}, false, err
	}

	row := s.tx.QueryRowContext(ctx, `
		SELECT user_id, balance, locked_until, notify_opt_out, last_notification_ref
		FROM candy_users WHERE user_id = $1 FOR UPDATE`, id)

	var (
		rowID string
		rec   UserRecord
	)
	if err := scanUser(row, &rowID, &rec); err != nil {
		return UserRecord{}, false, err
	}

	// The row already exists for this transaction's commit, so "created" only tells the caller
	// that it was new; the UPDATE at commit time rewrites it either way.
	return rec, inserted > 0, nil
}

func (s postgresSource) loadRotation(ctx context.Context, category string) ([]string, error) {
	if _, err := s.tx.ExecContext(ctx, `
		INSERT INTO candy_rotations (category, remaining) VALUES ($1, '[]'::jsonb)
		ON CONFLICT (category) DO NOTHING`, category); err != nil {
		return nil, err
	}

	var raw []byte
	if err := s.tx.QueryRowContext(ctx, `
		SELECT remaining FROM candy_rotations WHERE category = $1 FOR UPDATE`, category,
	).Scan(&raw); err != nil {
		return nil, err
	}

	var lines []string
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("decode rotation %s: %w", category, err)
	}
	if len(lines) == 0 {
		return nil, nil
	}
	return lines, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, id *string, rec *UserRecord) error {
	var (
		lockedUntil sql.NullTime
		ref         sql.NullString
	)
	if err := row.Scan(id, &rec.Balance, &lockedUntil, &rec.NotifyOptOut, &ref); err != nil {
		return fmt.Errorf("scan user: %w", err)
	}
	if lockedUntil.Valid {
		rec.LockedUntil = lockedUntil.Time.UTC()
	}
	if ref.Valid {
		rec.LastNotificationRef = ref.String
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
