// Package ledger persists per-user usage ledgers. Every mutation is a single
// conditional document update, so concurrent consumption attempts can never
// push a bounded counter past its limit and rollover is idempotent under
// races between the sweep and request traffic.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"jobtrail/internal/types"
)

// colUsageLedgers is the collection holding one ledger document per user.
const colUsageLedgers = "usage_ledgers"

// Store provides conditional-update access to usage ledgers.
type Store struct {
	col *mongo.Collection
}

// NewStore returns a ledger store bound to the given database.
func NewStore(db *mongo.Database) *Store {
	return &Store{col: db.Collection(colUsageLedgers)}
}

// EnsureIndexes creates the indexes the store depends on: a unique index on
// user_id (one ledger per user) and an index on quota_reset_date for the
// stale-ledger sweep.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "quota_reset_date", Value: 1}},
		},
	}
	if _, err := s.col.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("creating ledger indexes: %w", err)
	}
	return nil
}

// Get fetches a user's ledger, returning (nil, nil) when none exists.
func (s *Store) Get(ctx context.Context, userID string) (*types.UsageLedger, error) {
	var l types.UsageLedger
	err := s.col.FindOne(ctx, bson.M{"user_id": userID}).Decode(&l)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "fetching usage ledger", err)
	}
	return &l, nil
}

// GetOrCreate fetches the user's ledger, creating a zeroed one with the given
// reset date if none exists. The upsert only sets fields on insert, so a
// concurrent creation race resolves to a single document and no counts are
// lost.
func (s *Store) GetOrCreate(ctx context.Context, userID string, resetDate time.Time) (*types.UsageLedger, error) {
	now := time.Now().UTC()
	update := bson.M{
		"$setOnInsert": bson.M{
			"user_id":          userID,
			"usage":            bson.M{},
			"quota_reset_date": resetDate.UTC(),
			"notifications":    bson.A{},
			"date_created":     now,
			"date_updated":     now,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var l types.UsageLedger
	err := s.col.FindOneAndUpdate(ctx, bson.M{"user_id": userID}, update, opts).Decode(&l)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "ensuring usage ledger", err)
	}
	return &l, nil
}

// ConsumeIfAllowed atomically increments a bounded counter only while the
// post-increment value stays within the limit. The bound lives in the update
// filter, so two racing requests with one unit of headroom left can never
// both succeed.
//
// Returns the post-increment ledger on success and (nil, nil) when the
// increment would exceed the limit. Callers must pre-reject amounts larger
// than the limit; an absent counter key is treated as zero.
func (s *Store) ConsumeIfAllowed(ctx context.Context, userID, key string, amount, limit int) (*types.UsageLedger, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var l types.UsageLedger
	err := s.col.FindOneAndUpdate(ctx,
		consumeFilter(userID, key, amount, limit),
		incrementUpdate(key, amount),
		opts,
	).Decode(&l)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// No matching document: the counter is at (or past) the bound.
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "consuming quota", err)
	}
	return &l, nil
}

// IncrementUnbounded increments a counter with no bound check. Used for
// unlimited resources, where the count is kept for reporting only.
func (s *Store) IncrementUnbounded(ctx context.Context, userID, key string, amount int) (*types.UsageLedger, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var l types.UsageLedger
	err := s.col.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID},
		incrementUpdate(key, amount),
		opts,
	).Decode(&l)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "incrementing usage",
				fmt.Errorf("ledger not found for user %s", userID))
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "incrementing usage", err)
	}
	return &l, nil
}

// Refund decrements a counter after a failed downstream operation, flooring
// at zero via the filter: a refund never runs if it would drive the counter
// negative (e.g. the period rolled over in between).
func (s *Store) Refund(ctx context.Context, userID, key string, amount int) (*types.UsageLedger, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	filter := bson.M{
		"user_id":      userID,
		"usage." + key: bson.M{"$gte": amount},
	}

	var l types.UsageLedger
	err := s.col.FindOneAndUpdate(ctx, filter, incrementUpdate(key, -amount), opts).Decode(&l)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Nothing to refund. Not an error: the usage was already reset.
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "refunding usage", err)
	}
	return &l, nil
}

// Rollover resets a stale ledger to a fresh period: counters zeroed,
// notifications cleared, reset date advanced. The staleness check lives in
// the filter, so concurrent rollover attempts resolve to exactly one reset.
//
// Returns the pre-rollover ledger and true when this call performed the
// reset, and (nil, false, nil) when the ledger was already fresh or absent.
func (s *Store) Rollover(ctx context.Context, userID string, now, nextReset time.Time) (*types.UsageLedger, bool, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var prior types.UsageLedger
	err := s.col.FindOneAndUpdate(ctx,
		rolloverFilter(userID, now),
		rolloverUpdate(nextReset),
		opts,
	).Decode(&prior)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, types.NewAppError(types.ErrCodeInternalDB, "rolling over ledger", err)
	}
	return &prior, true, nil
}

// SetNotifications replaces the ledger's notification list wholesale. The
// list is derived from current counts each time, never appended to.
func (s *Store) SetNotifications(ctx context.Context, userID string, notifs []types.QuotaNotification) error {
	if notifs == nil {
		notifs = []types.QuotaNotification{}
	}
	update := bson.M{"$set": bson.M{
		"notifications": notifs,
		"date_updated":  time.Now().UTC(),
	}}
	if _, err := s.col.UpdateOne(ctx, bson.M{"user_id": userID}, update); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "storing quota notifications", err)
	}
	return nil
}

// ListStale returns up to limit ledgers whose period has elapsed, oldest
// first. Each sweep batch re-queries, so ledgers rolled over mid-sweep drop
// out of the next batch naturally.
func (s *Store) ListStale(ctx context.Context, now time.Time, limit int) ([]types.UsageLedger, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "quota_reset_date", Value: 1}}).
		SetLimit(int64(limit))

	cur, err := s.col.Find(ctx, bson.M{"quota_reset_date": bson.M{"$lte": now.UTC()}}, opts)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "listing stale ledgers", err)
	}
	defer cur.Close(ctx)

	var out []types.UsageLedger
	if err := cur.All(ctx, &out); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "decoding stale ledgers", err)
	}
	return out, nil
}

// consumeFilter matches the user's ledger only while the counter can absorb
// the increment: either the key has never been written (count zero) or its
// current value is at most limit-amount.
func consumeFilter(userID, key string, amount, limit int) bson.M {
	field := "usage." + key
	return bson.M{
		"user_id": userID,
		"$or": bson.A{
			bson.M{field: bson.M{"$exists": false}},
			bson.M{field: bson.M{"$lte": limit - amount}},
		},
	}
}

// incrementUpdate bumps one counter and touches the update timestamp.
func incrementUpdate(key string, amount int) bson.M {
	return bson.M{
		"$inc": bson.M{"usage." + key: amount},
		"$set": bson.M{"date_updated": time.Now().UTC()},
	}
}

// rolloverFilter matches only a ledger whose period has elapsed.
func rolloverFilter(userID string, now time.Time) bson.M {
	return bson.M{
		"user_id":          userID,
		"quota_reset_date": bson.M{"$lte": now.UTC()},
	}
}

// rolloverUpdate starts a fresh period.
func rolloverUpdate(nextReset time.Time) bson.M {
	return bson.M{"$set": bson.M{
		"usage":            bson.M{},
		"notifications":    bson.A{},
		"quota_reset_date": nextReset.UTC(),
		"date_updated":     time.Now().UTC(),
	}}
}
