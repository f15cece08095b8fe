package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobtrail/internal/types"
)

type fakeSweepStore struct {
	ledgers      map[string]*types.UsageLedger
	rolloverErrs map[string]error
	listErr      error
}

func newFakeSweepStore(ledgers ...*types.UsageLedger) *fakeSweepStore {
	m := make(map[string]*types.UsageLedger, len(ledgers))
	for _, l := range ledgers {
		m[l.UserID] = l
	}
	return &fakeSweepStore{ledgers: m, rolloverErrs: map[string]error{}}
}

func (s *fakeSweepStore) ListStale(ctx context.Context, now time.Time, limit int) ([]types.UsageLedger, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []types.UsageLedger
	for _, l := range s.ledgers {
		if !l.QuotaResetDate.After(now) {
			out = append(out, *l)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeSweepStore) Rollover(ctx context.Context, userID string, now, nextReset time.Time) (*types.UsageLedger, bool, error) {
	if err := s.rolloverErrs[userID]; err != nil {
		return nil, false, err
	}
	l, ok := s.ledgers[userID]
	if !ok || l.QuotaResetDate.After(now) {
		return nil, false, nil
	}
	prior := *l
	l.Usage = map[string]int{}
	l.Notifications = []types.QuotaNotification{}
	l.QuotaResetDate = nextReset
	return &prior, true, nil
}

type fixedReset struct {
	next time.Time
}

func (f *fixedReset) NextReset(ctx context.Context, userID string, now time.Time) time.Time {
	return f.next
}

type collectSink struct {
	snapshots []*types.UsageLedger
	err       error
}

func (c *collectSink) Append(led *types.UsageLedger, rolledAt time.Time) error {
	if c.err != nil {
		return c.err
	}
	c.snapshots = append(c.snapshots, led)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func staleLedger(userID string, age time.Duration) *types.UsageLedger {
	return &types.UsageLedger{
		UserID:         userID,
		Usage:          map[string]int{types.CounterCoverLetters: 5},
		QuotaResetDate: time.Now().UTC().Add(-age),
	}
}

func TestSweeper_RollsOverAllStaleLedgers(t *testing.T) {
	store := newFakeSweepStore(
		staleLedger("user-1", time.Hour),
		staleLedger("user-2", 2*time.Hour),
		staleLedger("user-3", 3*time.Hour),
	)
	now := time.Now().UTC()
	next := now.Add(30 * 24 * time.Hour)
	sink := &collectSink{}

	s := NewSweeper(store, &fixedReset{next: next}, sink, 2, testLogger())

	n, err := s.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, sink.snapshots, 3)

	for _, l := range store.ledgers {
		assert.Empty(t, l.Usage)
		assert.Equal(t, next, l.QuotaResetDate)
	}
}

func TestSweeper_SkipsFreshLedgers(t *testing.T) {
	fresh := &types.UsageLedger{
		UserID:         "user-fresh",
		Usage:          map[string]int{types.CounterResumes: 3},
		QuotaResetDate: time.Now().UTC().Add(time.Hour),
	}
	store := newFakeSweepStore(fresh)

	s := NewSweeper(store, &fixedReset{next: time.Now().Add(time.Hour)}, nil, 10, testLogger())

	n, err := s.Sweep(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 3, fresh.Usage[types.CounterResumes])
}

func TestSweeper_OneFailureDoesNotBlockOthers(t *testing.T) {
	store := newFakeSweepStore(
		staleLedger("user-ok", time.Hour),
		staleLedger("user-bad", time.Hour),
	)
	store.rolloverErrs["user-bad"] = errors.New("write conflict")

	now := time.Now().UTC()
	s := NewSweeper(store, &fixedReset{next: now.Add(time.Hour)}, nil, 10, testLogger())

	n, err := s.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The failed ledger stays stale for the next run.
	assert.False(t, store.ledgers["user-bad"].QuotaResetDate.After(now))
}

func TestSweeper_ArchiveFailureDoesNotFailSweep(t *testing.T) {
	store := newFakeSweepStore(staleLedger("user-1", time.Hour))
	sink := &collectSink{err: errors.New("disk full")}

	now := time.Now().UTC()
	s := NewSweeper(store, &fixedReset{next: now.Add(time.Hour)}, sink, 10, testLogger())

	n, err := s.Sweep(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSweeper_ArchivesPreRolloverState(t *testing.T) {
	led := staleLedger("user-1", time.Hour)
	led.Notifications = []types.QuotaNotification{
		{Kind: types.NotificationExceeded, CounterKey: types.CounterCoverLetters},
	}
	store := newFakeSweepStore(led)
	sink := &collectSink{}

	now := time.Now().UTC()
	s := NewSweeper(store, &fixedReset{next: now.Add(time.Hour)}, sink, 10, testLogger())

	_, err := s.Sweep(context.Background(), now)
	require.NoError(t, err)

	require.Len(t, sink.snapshots, 1)
	snap := sink.snapshots[0]
	assert.Equal(t, 5, snap.Usage[types.CounterCoverLetters])
	assert.Len(t, snap.Notifications, 1)
}
