package entitlement

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PGProvider answers entitlement checks from the user_entitlements
// table, which payment webhooks keep current.
type PGProvider struct {
	db *sql.DB
}

// NewPGProvider creates a database-backed entitlement provider.
func NewPGProvider(db *sql.DB) *PGProvider {
	return &PGProvider{db: db}
}

// HasActiveSubscription reports whether the user has an unexpired
// subscription.
func (p *PGProvider) HasActiveSubscription(ctx context.Context, userID string) (bool, error) {
	var tier string
	var expiresAt sql.NullTime
	err := p.db.QueryRowContext(ctx, `
		SELECT subscription_tier, subscription_expires_at
		FROM user_entitlements
		WHERE user_id = $1
	`, userID).Scan(&tier, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query entitlement: %w", err)
	}

	if tier == "free" {
		return false, nil
	}
	if !expiresAt.Valid {
		return false, nil
	}
	return expiresAt.Time.After(time.Now()), nil
}
