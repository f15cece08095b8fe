package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"jobtrail/internal/types"
)

// UserDirectory provides read access to the users table for the attributes
// quota decisions depend on: the subscription tier and, for paid tiers, the
// Stripe subscription backing it.
type UserDirectory struct {
	db DBTX
}

// NewUserDirectory creates a UserDirectory backed by the given database
// connection (pool or transaction).
func NewUserDirectory(db DBTX) *UserDirectory {
	return &UserDirectory{db: db}
}

// TierFor returns the user's subscription tier. The raw stored value is
// returned even when unrecognized; tier validation and fallback policy
// belong to the caller, which decides whether to fail closed or degrade.
func (d *UserDirectory) TierFor(ctx context.Context, userID string) (types.Tier, error) {
	const query = `
		SELECT subscription_tier
		FROM users
		WHERE id = $1
		  AND deleted_at IS NULL`

	var tier types.Tier
	if err := d.db.QueryRow(ctx, query, userID).Scan(&tier); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.NewAppError(types.ErrCodeNotFoundUser, "user not found", err)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to load user tier", err)
	}
	return tier, nil
}

// StripeSubscriptionID returns the user's Stripe subscription id, or empty
// when the user has no paid subscription on record.
func (d *UserDirectory) StripeSubscriptionID(ctx context.Context, userID string) (string, error) {
	const query = `
		SELECT COALESCE(stripe_subscription_id, '')
		FROM users
		WHERE id = $1
		  AND deleted_at IS NULL`

	var subID string
	if err := d.db.QueryRow(ctx, query, userID).Scan(&subID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.NewAppError(types.ErrCodeNotFoundUser, "user not found", err)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to load subscription id", err)
	}
	return subID, nil
}
