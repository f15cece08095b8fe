package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobtrail/internal/catalog"
	"jobtrail/internal/types"
)

type queryFixture struct {
	svc   *QueryService
	store *fakeStore
	tiers *fakeTiers
	jobs  *fakeJobs
}

func newQueryFixture(tier types.Tier) *queryFixture {
	store := newFakeStore()
	tiers := &fakeTiers{tier: tier}
	jobs := &fakeJobs{}
	log := testLogger()

	reset := NewResetPolicy(30*24*time.Hour, tiers, nil, log)
	cat := &staticCatalog{cat: catalog.Defaults()}

	return &queryFixture{
		svc:   NewQueryService(store, tiers, jobs, cat, reset, log),
		store: store,
		tiers: tiers,
		jobs:  jobs,
	}
}

func TestQueryService_Summary(t *testing.T) {
	fx := newQueryFixture(types.TierFree)
	fx.jobs.count = 12
	ctx := context.Background()

	future := time.Now().UTC().Add(10 * 24 * time.Hour)
	fx.store.ledgers["user-1"] = &types.UsageLedger{
		UserID: "user-1",
		Usage: map[string]int{
			types.CounterCoverLetters: 4,
			types.CounterEmailLookups: 2,
		},
		QuotaResetDate: future,
	}

	sum, err := fx.svc.Summary(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, types.ResourceUsage{Used: 12, Limit: 50, Remaining: 38}, sum.Jobs)
	assert.Equal(t, types.ResourceUsage{Used: 4, Limit: 10, Remaining: 6}, sum.CoverLetters)
	assert.Equal(t, types.ResourceUsage{Used: 0, Limit: 10, Remaining: 10}, sum.ResumeCredits)
	assert.Equal(t, types.ResourceUsage{Used: 2, Limit: 2, Remaining: 0}, sum.EmailLookups)
	assert.Equal(t, future, sum.ResetDate)
}

func TestQueryService_Summary_UnlimitedRemaining(t *testing.T) {
	fx := newQueryFixture(types.TierPower)
	fx.jobs.count = 500
	ctx := context.Background()

	sum, err := fx.svc.Summary(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, types.Unlimited, sum.Jobs.Remaining)
	assert.Equal(t, types.Unlimited, sum.CoverLetters.Remaining)
	assert.Equal(t, 500, sum.Jobs.Used)
}

func TestQueryService_Summary_CreatesLedgerForNewUser(t *testing.T) {
	fx := newQueryFixture(types.TierFree)
	ctx := context.Background()

	sum, err := fx.svc.Summary(ctx, "user-new")
	require.NoError(t, err)

	assert.Equal(t, 0, sum.CoverLetters.Used)
	assert.True(t, sum.ResetDate.After(time.Now().UTC()))
	assert.Contains(t, fx.store.ledgers, "user-new")
}

func TestQueryService_Summary_HealsStaleLedger(t *testing.T) {
	fx := newQueryFixture(types.TierFree)
	ctx := context.Background()

	fx.store.ledgers["user-1"] = &types.UsageLedger{
		UserID:         "user-1",
		Usage:          map[string]int{types.CounterCoverLetters: 10},
		QuotaResetDate: time.Now().UTC().Add(-time.Minute),
	}

	sum, err := fx.svc.Summary(ctx, "user-1")
	require.NoError(t, err)

	// Last period's consumption never leaks into the new window.
	assert.Equal(t, 0, sum.CoverLetters.Used)
	assert.True(t, sum.ResetDate.After(time.Now().UTC()))
}

func TestQueryService_Summary_UnknownTierFallsBackToDefault(t *testing.T) {
	fx := newQueryFixture(types.Tier("legacy_gold"))
	ctx := context.Background()

	sum, err := fx.svc.Summary(ctx, "user-1")
	require.NoError(t, err)

	// Display degrades to the default tier instead of failing the page.
	assert.Equal(t, 50, sum.Jobs.Limit)
	assert.Equal(t, 10, sum.CoverLetters.Limit)
}

func TestQueryService_Notifications_ReplacesStoredList(t *testing.T) {
	fx := newQueryFixture(types.TierFree)
	fx.jobs.count = 40
	ctx := context.Background()

	future := time.Now().UTC().Add(10 * 24 * time.Hour)
	fx.store.ledgers["user-1"] = &types.UsageLedger{
		UserID:         "user-1",
		Usage:          map[string]int{types.CounterCoverLetters: 9},
		QuotaResetDate: future,
		Notifications: []types.QuotaNotification{
			{Kind: types.NotificationExceeded, CounterKey: types.CounterEmailLookups},
		},
	}

	notifs, err := fx.svc.Notifications(ctx, "user-1")
	require.NoError(t, err)

	// Derived fresh: the stale email-lookup notification is gone, the
	// cover-letter warning is present.
	require.Len(t, notifs, 1)
	assert.Equal(t, types.CounterCoverLetters, notifs[0].CounterKey)
	assert.Equal(t, types.NotificationWarning, notifs[0].Kind)
	assert.Equal(t, notifs, fx.store.ledgers["user-1"].Notifications)
}
