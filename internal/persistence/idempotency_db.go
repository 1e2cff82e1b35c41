package persistence

import (
	"context"
	"database/sql"
	"fmt"
)

// DBIdempotencyChecker answers idempotency lookups from the event
// log. Used by the engine when a key has aged out of its in-memory
// window.
type DBIdempotencyChecker struct {
	db *sql.DB
}

func NewDBIdempotencyChecker(db *sql.DB) *DBIdempotencyChecker {
	return &DBIdempotencyChecker{db: db}
}

// Exists reports whether an event with this key was ever applied.
func (c *DBIdempotencyChecker) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	var exists bool
	err := c.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM flight_log.events WHERE idempotency_key = $1)`,
		idempotencyKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("idempotency lookup: %w", err)
	}
	return exists, nil
}

// RecentKeys returns the newest n idempotency keys, used to warm the
// engine's LRU at startup.
func (c *DBIdempotencyChecker) RecentKeys(ctx context.Context, n int) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT idempotency_key FROM flight_log.events ORDER BY sequence DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("load recent keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
