// Package quota implements per-user usage accounting: limit enforcement for
// metered actions and job slots, period rollover, threshold notifications,
// and the caller-facing usage summary.
//
// Enforcement fails closed: when the user's tier, the catalog, or the ledger
// cannot be resolved, the action is denied with an error rather than allowed
// on a guess.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"jobtrail/internal/catalog"
	"jobtrail/internal/types"
)

// LedgerStore is the persistence surface the engine drives. Implemented by
// ledger.Store.
type LedgerStore interface {
	Get(ctx context.Context, userID string) (*types.UsageLedger, error)
	GetOrCreate(ctx context.Context, userID string, resetDate time.Time) (*types.UsageLedger, error)
	ConsumeIfAllowed(ctx context.Context, userID, key string, amount, limit int) (*types.UsageLedger, error)
	IncrementUnbounded(ctx context.Context, userID, key string, amount int) (*types.UsageLedger, error)
	Refund(ctx context.Context, userID, key string, amount int) (*types.UsageLedger, error)
	Rollover(ctx context.Context, userID string, now, nextReset time.Time) (*types.UsageLedger, bool, error)
	SetNotifications(ctx context.Context, userID string, notifs []types.QuotaNotification) error
}

// TierSource resolves a user to their subscription tier. Implemented by
// db.UserDirectory.
type TierSource interface {
	TierFor(ctx context.Context, userID string) (types.Tier, error)
}

// JobCounter counts a user's active job applications. Implemented by
// db.JobRepo.
type JobCounter interface {
	CountActive(ctx context.Context, userID string) (int, error)
}

// DecisionRecorder emits one metric per quota decision. Implemented by
// metrics.CloudWatchCollector.
type DecisionRecorder interface {
	RecordDecision(ctx context.Context, action string, allowed bool)
}

// NotificationPublisher delivers freshly raised threshold notifications to
// the outbound queue. Implemented by queue.Notifier.
type NotificationPublisher interface {
	PublishQuotaNotifications(ctx context.Context, userID string, notifs []types.QuotaNotification) error
}

// Engine enforces quota limits. All mutations go through the ledger store's
// conditional updates, so the engine itself holds no locks and no state.
type Engine struct {
	store     LedgerStore
	tiers     TierSource
	jobs      JobCounter
	catalog   catalog.Source
	reset     *ResetPolicy
	metrics   DecisionRecorder
	publisher NotificationPublisher
	log       *slog.Logger
	now       func() time.Time
}

// NewEngine wires an enforcement engine. metrics and publisher may be nil;
// the corresponding side effects are skipped.
func NewEngine(
	store LedgerStore,
	tiers TierSource,
	jobs JobCounter,
	cat catalog.Source,
	reset *ResetPolicy,
	metrics DecisionRecorder,
	publisher NotificationPublisher,
	log *slog.Logger,
) *Engine {
	return &Engine{
		store:     store,
		tiers:     tiers,
		jobs:      jobs,
		catalog:   cat,
		reset:     reset,
		metrics:   metrics,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// TryConsume atomically consumes amount units of the action's counter if the
// tier limit allows it. Denial is a normal result, not an error: the caller
// branches on result.Allowed and must only perform the gated operation after
// an allowed result.
func (e *Engine) TryConsume(ctx context.Context, userID string, action types.MeteredAction, amount int) (types.ConsumeResult, error) {
	var zero types.ConsumeResult

	if !action.Valid() {
		return zero, types.NewAppError(types.ErrCodeValidationInvalidAction,
			fmt.Sprintf("unknown metered action %q", action), nil)
	}
	if amount < 1 {
		return zero, types.NewAppError(types.ErrCodeValidationInvalidAmount,
			fmt.Sprintf("amount must be positive, got %d", amount), nil)
	}

	limits, err := e.limitsFor(ctx, userID)
	if err != nil {
		return zero, err
	}

	now := e.now().UTC()
	led, err := e.freshLedger(ctx, userID, now)
	if err != nil {
		return zero, err
	}

	key := action.CounterKey()
	limit := limits.ForAction(action)

	result := types.ConsumeResult{
		Action:    action,
		Limit:     limit,
		ResetDate: led.QuotaResetDate,
	}

	switch {
	case limit == types.Unlimited:
		updated, err := e.store.IncrementUnbounded(ctx, userID, key, amount)
		if err != nil {
			return zero, err
		}
		result.Allowed = true
		result.Used = updated.Used(key)
		led = updated

	case limit == 0 || amount > limit:
		// The tier grants nothing, or the request can never fit.
		result.Used = led.Used(key)

	default:
		updated, err := e.store.ConsumeIfAllowed(ctx, userID, key, amount, limit)
		if err != nil {
			return zero, err
		}
		if updated == nil {
			result.Used = led.Used(key)
		} else {
			result.Allowed = true
			result.Used = updated.Used(key)
			led = updated
		}
	}

	e.recordDecision(ctx, string(action), result.Allowed)
	if result.Allowed {
		e.refreshNotifications(ctx, userID, limits, led)
	}
	return result, nil
}

// CheckJobSlot reports whether the user may create one more job application.
// Job usage is the live count of active job records, so nothing is consumed
// here; the caller creates the record only after an allowed result.
func (e *Engine) CheckJobSlot(ctx context.Context, userID string) (types.ConsumeResult, error) {
	var zero types.ConsumeResult

	limits, err := e.limitsFor(ctx, userID)
	if err != nil {
		return zero, err
	}

	now := e.now().UTC()
	led, err := e.freshLedger(ctx, userID, now)
	if err != nil {
		return zero, err
	}

	count, err := e.jobs.CountActive(ctx, userID)
	if err != nil {
		return zero, err
	}

	result := types.ConsumeResult{
		Action:    "job_slot",
		Used:      count,
		Limit:     limits.Jobs,
		ResetDate: led.QuotaResetDate,
	}
	result.Allowed = limits.Jobs == types.Unlimited || count < limits.Jobs

	e.recordDecision(ctx, "job_slot", result.Allowed)
	return result, nil
}

// Refund returns amount units to the user's counter after a gated operation
// failed downstream. A refund that would drive the counter negative (the
// period rolled over in between) is silently skipped.
func (e *Engine) Refund(ctx context.Context, userID string, action types.MeteredAction, amount int) error {
	if !action.Valid() {
		return types.NewAppError(types.ErrCodeValidationInvalidAction,
			fmt.Sprintf("unknown metered action %q", action), nil)
	}
	if amount < 1 {
		return types.NewAppError(types.ErrCodeValidationInvalidAmount,
			fmt.Sprintf("amount must be positive, got %d", amount), nil)
	}

	_, err := e.store.Refund(ctx, userID, action.CounterKey(), amount)
	return err
}

// limitsFor resolves the user's tier limits from the catalog. Enforcement is
// strict: an unrecognized tier or missing catalog entry is a configuration
// error, not a fallback.
func (e *Engine) limitsFor(ctx context.Context, userID string) (types.TierLimits, error) {
	var zero types.TierLimits

	tier, err := e.tiers.TierFor(ctx, userID)
	if err != nil {
		return zero, err
	}

	cat, err := e.catalog.Current(ctx)
	if err != nil {
		return zero, err
	}

	limits, ok := cat.Limits(tier)
	if !ok {
		return zero, types.NewAppError(types.ErrCodeConfigMissingTier,
			fmt.Sprintf("no catalog entry for tier %q", tier), nil)
	}
	return limits, nil
}

// freshLedger returns the user's ledger for the current period, creating it
// if absent and rolling it over if its period has elapsed. The rollover is
// conditional in storage, so concurrent callers heal a stale ledger exactly
// once.
func (e *Engine) freshLedger(ctx context.Context, userID string, now time.Time) (*types.UsageLedger, error) {
	led, err := e.store.GetOrCreate(ctx, userID, e.reset.NextReset(ctx, userID, now))
	if err != nil {
		return nil, err
	}
	if !led.Stale(now) {
		return led, nil
	}

	next := e.reset.NextReset(ctx, userID, now)
	if _, rolled, err := e.store.Rollover(ctx, userID, now, next); err != nil {
		return nil, err
	} else if rolled {
		e.log.InfoContext(ctx, "rolled over stale usage ledger",
			"user_id", userID, "next_reset", next)
	}

	return e.store.GetOrCreate(ctx, userID, next)
}

// refreshNotifications re-derives the user's notification list after a
// successful consume and publishes any fresh threshold crossings. Failures
// here never fail the consume; they are logged and the next consume retries.
func (e *Engine) refreshNotifications(ctx context.Context, userID string, limits types.TierLimits, led *types.UsageLedger) {
	jobsUsed, err := e.jobs.CountActive(ctx, userID)
	if err != nil {
		e.log.WarnContext(ctx, "job count unavailable for notification refresh",
			"user_id", userID, "error", err)
		return
	}

	next := DeriveNotifications(limits, jobsUsed, led)
	if err := e.store.SetNotifications(ctx, userID, next); err != nil {
		e.log.WarnContext(ctx, "failed to store quota notifications",
			"user_id", userID, "error", err)
		return
	}

	if e.publisher == nil {
		return
	}
	if fresh := newlyRaised(led.Notifications, next); len(fresh) > 0 {
		if err := e.publisher.PublishQuotaNotifications(ctx, userID, fresh); err != nil {
			e.log.WarnContext(ctx, "failed to publish quota notifications",
				"user_id", userID, "error", err)
		}
	}
}

func (e *Engine) recordDecision(ctx context.Context, action string, allowed bool) {
	if e.metrics != nil {
		e.metrics.RecordDecision(ctx, action, allowed)
	}
}
