// Package postgres provides a PostgreSQL-backed Directory.
//
// Usage counters live in one table and every increment is a single
// SQL-level UPDATE, so concurrent streams for the same target cannot lose
// updates. Idempotency keys live in a second table; a commit whose key
// was already recorded is a no-op.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edukia/chatrelay"
)

// Directory is a PostgreSQL-backed usage directory.
type Directory struct {
	pool        *pgxpool.Pool
	tablePrefix string
}

var _ chatrelay.Directory = (*Directory)(nil)

// Option configures Directory.
type Option func(*Directory)

// WithTablePrefix sets the table name prefix (default "chatrelay_").
func WithTablePrefix(prefix string) Option {
	return func(d *Directory) { d.tablePrefix = prefix }
}

// New creates a PostgreSQL-backed Directory.
func New(pool *pgxpool.Pool, opts ...Option) *Directory {
	d := &Directory{
		pool:        pool,
		tablePrefix: "chatrelay_",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Directory) usageTable() string       { return d.tablePrefix + "usage" }
func (d *Directory) idempotencyTable() string { return d.tablePrefix + "idempotency" }

// EnsureSchema creates the required tables if they don't exist.
func (d *Directory) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			user_id TEXT NOT NULL,
			course_id TEXT NOT NULL DEFAULT '',
			usage_count BIGINT NOT NULL DEFAULT 0,
			usage_limit BIGINT,
			PRIMARY KEY (user_id, course_id)
		);
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`, d.usageTable(), d.idempotencyTable())
	if _, err := d.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("chatrelay/postgres: ensure schema: %w", err)
	}
	return nil
}

// GetQuota returns the current counters for a target. An unknown target
// is unlimited with zero usage.
func (d *Directory) GetQuota(ctx context.Context, target chatrelay.QuotaTarget) (chatrelay.Quota, error) {
	var quota chatrelay.Quota
	err := d.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT usage_count, usage_limit FROM %s WHERE user_id = $1 AND course_id = $2`,
			d.usageTable()),
		target.UserID, target.CourseID,
	).Scan(&quota.UsageCount, &quota.UsageLimit)
	if errors.Is(err, pgx.ErrNoRows) {
		return chatrelay.Quota{}, nil
	}
	if err != nil {
		return chatrelay.Quota{}, fmt.Errorf("chatrelay/postgres: get quota: %w", err)
	}
	return quota, nil
}

// IncrementUsage atomically adds delta to the target's counter.
func (d *Directory) IncrementUsage(ctx context.Context, target chatrelay.QuotaTarget, delta int64, idempotencyKey string) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("chatrelay/postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if idempotencyKey != "" {
		tag, err := tx.Exec(ctx,
			fmt.Sprintf(`INSERT INTO %s (key) VALUES ($1) ON CONFLICT DO NOTHING`, d.idempotencyTable()),
			idempotencyKey,
		)
		if err != nil {
			return fmt.Errorf("chatrelay/postgres: idempotency check: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil // already applied
		}
	}

	_, err = tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (user_id, course_id, usage_count) VALUES ($1, $2, $3)
			ON CONFLICT (user_id, course_id)
			DO UPDATE SET usage_count = %s.usage_count + EXCLUDED.usage_count`,
			d.usageTable(), d.usageTable()),
		target.UserID, target.CourseID, delta,
	)
	if err != nil {
		return fmt.Errorf("chatrelay/postgres: increment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("chatrelay/postgres: commit: %w", err)
	}
	return nil
}

// SetLimit configures a finite usage limit for a target.
func (d *Directory) SetLimit(ctx context.Context, target chatrelay.QuotaTarget, limit int64) error {
	_, err := d.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (user_id, course_id, usage_limit) VALUES ($1, $2, $3)
			ON CONFLICT (user_id, course_id) DO UPDATE SET usage_limit = EXCLUDED.usage_limit`,
			d.usageTable()),
		target.UserID, target.CourseID, limit,
	)
	if err != nil {
		return fmt.Errorf("chatrelay/postgres: set limit: %w", err)
	}
	return nil
}

// SetUnlimited removes a target's usage limit.
func (d *Directory) SetUnlimited(ctx context.Context, target chatrelay.QuotaTarget) error {
	_, err := d.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET usage_limit = NULL WHERE user_id = $1 AND course_id = $2`,
			d.usageTable()),
		target.UserID, target.CourseID,
	)
	if err != nil {
		return fmt.Errorf("chatrelay/postgres: set unlimited: %w", err)
	}
	return nil
}

// ResetUsage zeroes a target's usage counter. Reset schedules are driven
// by an external scheduler calling this, not by the store itself.
func (d *Directory) ResetUsage(ctx context.Context, target chatrelay.QuotaTarget) error {
	_, err := d.pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET usage_count = 0 WHERE user_id = $1 AND course_id = $2`,
			d.usageTable()),
		target.UserID, target.CourseID,
	)
	if err != nil {
		return fmt.Errorf("chatrelay/postgres: reset usage: %w", err)
	}
	return nil
}
