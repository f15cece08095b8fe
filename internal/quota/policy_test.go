package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubs struct {
	subID string
	err   error
}

func (f *fakeSubs) StripeSubscriptionID(ctx context.Context, userID string) (string, error) {
	return f.subID, f.err
}

type fakeBilling struct {
	end *time.Time
	err error
}

func (f *fakeBilling) CurrentPeriodEnd(ctx context.Context, subscriptionID string) (*time.Time, error) {
	return f.end, f.err
}

func TestResetPolicy_FixedWindowWithoutBilling(t *testing.T) {
	p := NewResetPolicy(30*24*time.Hour, nil, nil, testLogger())

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	got := p.NextReset(context.Background(), "user-1", now)
	assert.Equal(t, now.Add(30*24*time.Hour), got)
}

func TestResetPolicy_UsesBillingPeriodEnd(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	end := now.Add(12 * 24 * time.Hour)

	p := NewResetPolicy(30*24*time.Hour,
		&fakeSubs{subID: "sub_123"},
		&fakeBilling{end: &end},
		testLogger())

	got := p.NextReset(context.Background(), "user-1", now)
	assert.Equal(t, end, got)
}

func TestResetPolicy_PastPeriodEndFallsBack(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	end := now.Add(-time.Hour)

	p := NewResetPolicy(30*24*time.Hour,
		&fakeSubs{subID: "sub_123"},
		&fakeBilling{end: &end},
		testLogger())

	got := p.NextReset(context.Background(), "user-1", now)
	assert.Equal(t, now.Add(30*24*time.Hour), got)
}

func TestResetPolicy_FreeUserSkipsBilling(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	p := NewResetPolicy(30*24*time.Hour,
		&fakeSubs{subID: ""},
		&fakeBilling{err: errors.New("should not be called")},
		testLogger())

	got := p.NextReset(context.Background(), "user-1", now)
	assert.Equal(t, now.Add(30*24*time.Hour), got)
}

func TestResetPolicy_BillingFailureDegrades(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	p := NewResetPolicy(30*24*time.Hour,
		&fakeSubs{subID: "sub_123"},
		&fakeBilling{err: errors.New("stripe down")},
		testLogger())

	got := p.NextReset(context.Background(), "user-1", now)
	require.Equal(t, now.Add(30*24*time.Hour), got)
}
