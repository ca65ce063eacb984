package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresRateLimiter keeps fixed windows in the login_rate_limits table, for
// deployments that have a database but no Redis.
type PostgresRateLimiter struct {
	db      *sql.DB
	maxHits int
	window  time.Duration
}

func NewPostgresRateLimiter(db *sql.DB, maxHits int, window time.Duration) *PostgresRateLimiter {
	maxHits, window = limiterDefaults(maxHits, window)
	return &PostgresRateLimiter{db: db, maxHits: maxHits, window: window}
}

func (l *PostgresRateLimiter) Allow(ctx context.Context, key string, now time.Time) (bool, time.Duration, error) {
	now = now.UTC()
	threshold := now.Add(-l.window)

	var (
		hits            int
		windowStartedAt time.Time
	)
	err := l.db.QueryRowContext(ctx, `
		INSERT INTO login_rate_limits (key, window_started_at, hits, updated_at)
		VALUES ($1, $2, 1, $2)
		ON CONFLICT (key) DO UPDATE
		SET
			hits = CASE
				WHEN login_rate_limits.window_started_at <= $3 THEN 1
				ELSE login_rate_limits.hits + 1
			END,
			window_started_at = CASE
				WHEN login_rate_limits.window_started_at <= $3 THEN $2
				ELSE login_rate_limits.window_started_at
			END,
			updated_at = $2
		RETURNING hits, window_started_at
	`, key, now, threshold).Scan(&hits, &windowStartedAt)
	if err != nil {
		return false, 0, fmt.Errorf("upsert login rate limit: %w", err)
	}

	if hits <= l.maxHits {
		return true, 0, nil
	}
	return false, clampRetry(windowStartedAt.Add(l.window).Sub(now)), nil
}

// DeleteStale removes windows idle since before cutoff, at most batchSize rows.
func (l *PostgresRateLimiter) DeleteStale(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	res, err := l.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT key
			FROM login_rate_limits
			WHERE updated_at < $1
			ORDER BY updated_at ASC
			LIMIT $2
		)
		DELETE FROM login_rate_limits t
		USING stale
		WHERE t.key = stale.key
	`, cutoff.UTC(), batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale login rate limits: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale login rate limits rows affected: %w", err)
	}
	return affected, nil
}
