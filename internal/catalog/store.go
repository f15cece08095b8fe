package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"jobtrail/internal/types"
)

// colQuotaConfig is the collection holding the singleton catalog document.
const colQuotaConfig = "quota_config"

// catalogDocID pins the singleton. Writes replace this document; reads fetch
// it by id.
const catalogDocID = "tier_limits"

// catalogDoc is the persistence shape of the tier catalog.
type catalogDoc struct {
	ID        string                          `bson:"_id"`
	Tiers     map[types.Tier]types.TierLimits `bson:"tiers"`
	UpdatedAt time.Time                       `bson:"updated_at"`
	UpdatedBy string                          `bson:"updated_by,omitempty"`
}

// Store reads and replaces the singleton tier catalog document.
type Store struct {
	col *mongo.Collection
}

// NewStore returns a catalog store bound to the given database.
func NewStore(db *mongo.Database) *Store {
	return &Store{col: db.Collection(colQuotaConfig)}
}

// Load fetches the catalog document. A missing or structurally invalid
// document is a hard configuration error: quota decisions must never run
// against a guessed catalog.
func (s *Store) Load(ctx context.Context) (types.TierCatalog, error) {
	var doc catalogDoc
	err := s.col.FindOne(ctx, bson.M{"_id": catalogDocID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return types.TierCatalog{}, types.NewAppError(
				types.ErrCodeConfigMissingTier, "tier catalog document not found", err)
		}
		return types.TierCatalog{}, types.NewAppError(
			types.ErrCodeInternalDB, "loading tier catalog", err)
	}

	cat := types.TierCatalog{Tiers: doc.Tiers, UpdatedAt: doc.UpdatedAt}
	if err := cat.Validate(); err != nil {
		return types.TierCatalog{}, types.NewAppError(
			types.ErrCodeConfigMissingTier, "tier catalog document is invalid", err)
	}
	return cat, nil
}

// Replace overwrites the catalog in a single upsert. The catalog must pass
// validation before it is written; a partial catalog never reaches storage.
func (s *Store) Replace(ctx context.Context, cat types.TierCatalog, updatedBy string) (types.TierCatalog, error) {
	if err := cat.Validate(); err != nil {
		return types.TierCatalog{}, types.NewAppError(
			types.ErrCodeValidationInvalidLimit, "tier catalog rejected", err)
	}

	now := time.Now().UTC()
	doc := catalogDoc{
		ID:        catalogDocID,
		Tiers:     cat.Tiers,
		UpdatedAt: now,
		UpdatedBy: updatedBy,
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.col.ReplaceOne(ctx, bson.M{"_id": catalogDocID}, doc, opts); err != nil {
		return types.TierCatalog{}, types.NewAppError(
			types.ErrCodeInternalDB, "replacing tier catalog", err)
	}

	cat.UpdatedAt = now
	return cat, nil
}

// Seed writes the hardcoded default catalog only when no document exists yet.
// Used at startup so a fresh deployment has a working catalog without an
// admin call.
func (s *Store) Seed(ctx context.Context) error {
	doc := catalogDoc{
		ID:        catalogDocID,
		Tiers:     Defaults().Tiers,
		UpdatedAt: time.Now().UTC(),
		UpdatedBy: "seed",
	}

	update := bson.M{"$setOnInsert": doc}
	opts := options.UpdateOne().SetUpsert(true)
	if _, err := s.col.UpdateOne(ctx, bson.M{"_id": catalogDocID}, update, opts); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "seeding tier catalog", err)
	}
	return nil
}

// Source supplies the current tier catalog to the quota engine.
type Source interface {
	Current(ctx context.Context) (types.TierCatalog, error)
}

// loader is the subset of Store the cache needs.
type loader interface {
	Load(ctx context.Context) (types.TierCatalog, error)
}

// CachedSource wraps a catalog loader with a short TTL cache. The catalog
// changes only on admin writes, so a few seconds of staleness is acceptable
// while keeping one document read off the hot path of every quota decision.
type CachedSource struct {
	store loader
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	cached  types.TierCatalog
	loaded  time.Time
	haveOne bool
}

// NewCachedSource returns a caching source with the given TTL.
func NewCachedSource(store loader, ttl time.Duration) *CachedSource {
	return &CachedSource{store: store, ttl: ttl, now: time.Now}
}

// Current returns the cached catalog, reloading it when the TTL has elapsed.
// A failed reload falls back to the last good catalog rather than failing the
// request; only a cold cache propagates the load error.
func (c *CachedSource) Current(ctx context.Context) (types.TierCatalog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.haveOne && now.Sub(c.loaded) < c.ttl {
		return c.cached, nil
	}

	cat, err := c.store.Load(ctx)
	if err != nil {
		if c.haveOne {
			return c.cached, nil
		}
		return types.TierCatalog{}, err
	}

	c.cached = cat
	c.loaded = now
	c.haveOne = true
	return cat, nil
}

// Invalidate drops the cached catalog so the next read hits storage. Called
// after an admin write.
func (c *CachedSource) Invalidate() {
	c.mu.Lock()
	c.haveOne = false
	c.mu.Unlock()
}
