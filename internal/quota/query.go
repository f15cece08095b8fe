package quota

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"jobtrail/internal/catalog"
	"jobtrail/internal/types"
)

// QueryService serves read paths: the usage summary and on-demand
// notification refresh. Unlike the engine, display degrades instead of
// failing: an unrecognized tier falls back to the default tier's limits so
// the user still sees a usage page while the anomaly is investigated.
type QueryService struct {
	store LedgerStore
	tiers TierSource
	jobs  JobCounter
	cat   catalog.Source
	reset *ResetPolicy
	log   *slog.Logger
	now   func() time.Time
}

// NewQueryService wires a quota query service.
func NewQueryService(
	store LedgerStore,
	tiers TierSource,
	jobs JobCounter,
	cat catalog.Source,
	reset *ResetPolicy,
	log *slog.Logger,
) *QueryService {
	return &QueryService{
		store: store,
		tiers: tiers,
		jobs:  jobs,
		cat:   cat,
		reset: reset,
		log:   log,
		now:   time.Now,
	}
}

// Summary returns the user's current usage against their tier limits. A
// stale ledger is rolled over before counts are read, so a summary never
// reports last period's consumption against this period's window.
func (s *QueryService) Summary(ctx context.Context, userID string) (*types.QuotaSummary, error) {
	limits, err := s.displayLimits(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()

	var led *types.UsageLedger
	var jobsUsed int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		led, err = s.freshLedger(gctx, userID, now)
		return err
	})
	g.Go(func() error {
		var err error
		jobsUsed, err = s.jobs.CountActive(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &types.QuotaSummary{
		Jobs:          types.NewResourceUsage(jobsUsed, limits.Jobs),
		CoverLetters:  types.NewResourceUsage(led.Used(types.CounterCoverLetters), limits.CoverLetters),
		ResumeCredits: types.NewResourceUsage(led.Used(types.CounterResumes), limits.ResumeCredits),
		EmailLookups:  types.NewResourceUsage(led.Used(types.CounterEmailLookups), limits.EmailLookups),
		ResetDate:     led.QuotaResetDate,
	}, nil
}

// Notifications re-derives and persists the user's notification list from
// current counts, returning the stored result. The list is replaced, never
// appended to.
func (s *QueryService) Notifications(ctx context.Context, userID string) ([]types.QuotaNotification, error) {
	limits, err := s.displayLimits(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	led, err := s.freshLedger(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	jobsUsed, err := s.jobs.CountActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	notifs := DeriveNotifications(limits, jobsUsed, led)
	if err := s.store.SetNotifications(ctx, userID, notifs); err != nil {
		return nil, err
	}
	return notifs, nil
}

// displayLimits resolves the user's limits for read paths. An unknown tier
// is logged as an anomaly and degrades to the default tier's limits rather
// than failing the page.
func (s *QueryService) displayLimits(ctx context.Context, userID string) (types.TierLimits, error) {
	tier, err := s.tiers.TierFor(ctx, userID)
	if err != nil {
		return types.TierLimits{}, err
	}

	cat, err := s.cat.Current(ctx)
	if err != nil {
		return types.TierLimits{}, err
	}

	limits, ok := cat.Limits(tier)
	if !ok {
		s.log.ErrorContext(ctx, "unrecognized tier, falling back to default limits",
			"user_id", userID, "tier", string(tier), "default_tier", string(types.DefaultTier))
		limits, ok = cat.Limits(types.DefaultTier)
		if !ok {
			return types.TierLimits{}, types.NewAppError(types.ErrCodeConfigMissingTier,
				"catalog is missing the default tier", nil)
		}
	}
	return limits, nil
}

// freshLedger mirrors the engine's get-or-create with conditional rollover.
func (s *QueryService) freshLedger(ctx context.Context, userID string, now time.Time) (*types.UsageLedger, error) {
	led, err := s.store.GetOrCreate(ctx, userID, s.reset.NextReset(ctx, userID, now))
	if err != nil {
		return nil, err
	}
	if !led.Stale(now) {
		return led, nil
	}

	next := s.reset.NextReset(ctx, userID, now)
	if _, _, err := s.store.Rollover(ctx, userID, now, next); err != nil {
		return nil, err
	}
	return s.store.GetOrCreate(ctx, userID, next)
}
