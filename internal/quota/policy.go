package quota

import (
	"context"
	"log/slog"
	"time"
)

// SubscriptionSource resolves a user to their billing subscription id.
// Implemented by db.UserDirectory.
type SubscriptionSource interface {
	StripeSubscriptionID(ctx context.Context, userID string) (string, error)
}

// BillingPeriods resolves a subscription to its current period end.
// Implemented by external.StripeClient.
type BillingPeriods interface {
	CurrentPeriodEnd(ctx context.Context, subscriptionID string) (*time.Time, error)
}

// ResetPolicy decides when a user's next quota period starts. Paid users
// reset at their billing period end so usage windows track invoices; free
// users and any billing failure fall back to a fixed window from now.
type ResetPolicy struct {
	window  time.Duration
	subs    SubscriptionSource
	billing BillingPeriods
	log     *slog.Logger
}

// NewResetPolicy builds a reset policy. billing may be nil, in which case
// every reset uses the fixed window.
func NewResetPolicy(window time.Duration, subs SubscriptionSource, billing BillingPeriods, log *slog.Logger) *ResetPolicy {
	return &ResetPolicy{window: window, subs: subs, billing: billing, log: log}
}

// NextReset returns the next reset date for the user, never earlier than
// now. Billing lookups are advisory: a failure degrades to the fixed window
// with a warning rather than blocking the quota operation.
func (p *ResetPolicy) NextReset(ctx context.Context, userID string, now time.Time) time.Time {
	fallback := now.Add(p.window).UTC()
	if p.billing == nil || p.subs == nil {
		return fallback
	}

	subID, err := p.subs.StripeSubscriptionID(ctx, userID)
	if err != nil {
		p.log.WarnContext(ctx, "subscription lookup failed, using fixed reset window",
			"user_id", userID, "error", err)
		return fallback
	}
	if subID == "" {
		return fallback
	}

	end, err := p.billing.CurrentPeriodEnd(ctx, subID)
	if err != nil {
		p.log.WarnContext(ctx, "billing period lookup failed, using fixed reset window",
			"user_id", userID, "error", err)
		return fallback
	}
	if end == nil || !end.After(now) {
		return fallback
	}
	return end.UTC()
}
