package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Counter is one sliding fixed-width window of request counts for an
// identity within a scope.
type Counter struct {
	Identity     string
	Scope        string
	RequestCount int
	WindowStart  time.Time
}

// CounterStore persists quota counters. The limiter reads the counter,
// decides, then increments; the read and the increment are separate
// statements, so the limiter is approximate under contention from the
// same identity. That looseness is accepted by design.
type CounterStore interface {
	Get(ctx context.Context, identity, scope string) (*Counter, error)
	Reset(ctx context.Context, identity, scope string, windowStart time.Time) error
	Increment(ctx context.Context, identity, scope string) error
}

// PGCounterStore is the PostgreSQL counter store.
type PGCounterStore struct {
	db *sql.DB
}

// NewPGCounterStore creates a counter store backed by PostgreSQL.
func NewPGCounterStore(db *sql.DB) *PGCounterStore {
	return &PGCounterStore{db: db}
}

func (s *PGCounterStore) Get(ctx context.Context, identity, scope string) (*Counter, error) {
	var c Counter
	err := s.db.QueryRowContext(ctx, `
		SELECT identity, scope, request_count, window_start
		FROM quota_counters
		WHERE identity = $1 AND scope = $2
	`, identity, scope).Scan(&c.Identity, &c.Scope, &c.RequestCount, &c.WindowStart)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query quota counter: %w", err)
	}
	return &c, nil
}

func (s *PGCounterStore) Reset(ctx context.Context, identity, scope string, windowStart time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quota_counters (identity, scope, request_count, window_start)
		VALUES ($1, $2, 0, $3)
		ON CONFLICT (identity, scope)
		DO UPDATE SET request_count = 0, window_start = $3
	`, identity, scope, windowStart)
	if err != nil {
		return fmt.Errorf("failed to reset quota counter: %w", err)
	}
	return nil
}

func (s *PGCounterStore) Increment(ctx context.Context, identity, scope string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quota_counters (identity, scope, request_count, window_start)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (identity, scope)
		DO UPDATE SET request_count = quota_counters.request_count + 1
	`, identity, scope)
	if err != nil {
		return fmt.Errorf("failed to increment quota counter: %w", err)
	}
	return nil
}
