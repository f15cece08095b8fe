package types

import (
	"fmt"
	"time"
)

// TierLimits holds the per-resource caps granted by one subscription tier.
// A value of Unlimited (-1) means no cap; zero means the resource is not
// granted at all on that tier.
type TierLimits struct {
	Jobs          int `bson:"jobs" json:"jobs" validate:"gte=-1"`
	CoverLetters  int `bson:"cover_letters" json:"cover_letters" validate:"gte=-1"`
	ResumeCredits int `bson:"resume_credits" json:"resume_credits" validate:"gte=-1"`
	EmailLookups  int `bson:"email_lookups" json:"email_lookups" validate:"gte=-1"`
}

// ForAction returns the limit governing the given metered action.
func (l TierLimits) ForAction(a MeteredAction) int {
	switch a {
	case ActionCoverLetter:
		return l.CoverLetters
	case ActionResumeGenerate, ActionResumeRate:
		return l.ResumeCredits
	case ActionEmailLookup:
		return l.EmailLookups
	default:
		return 0
	}
}

// ForCounter returns the limit governing the given ledger counter key.
func (l TierLimits) ForCounter(key string) int {
	switch key {
	case CounterCoverLetters:
		return l.CoverLetters
	case CounterResumes:
		return l.ResumeCredits
	case CounterEmailLookups:
		return l.EmailLookups
	default:
		return 0
	}
}

// Validate checks that every limit is non-negative or exactly the Unlimited
// sentinel.
func (l TierLimits) Validate() error {
	for name, v := range map[string]int{
		"jobs":           l.Jobs,
		"cover_letters":  l.CoverLetters,
		"resume_credits": l.ResumeCredits,
		"email_lookups":  l.EmailLookups,
	} {
		if v < Unlimited {
			return fmt.Errorf("limit %s must be >= -1, got %d", name, v)
		}
	}
	return nil
}

// TierCatalog is the authoritative mapping from tier to resource limits.
// Exactly one catalog document exists at a time; it is loaded whole and
// indexed by tier.
type TierCatalog struct {
	Tiers     map[Tier]TierLimits `bson:"tiers" json:"tiers"`
	UpdatedAt time.Time           `bson:"updated_at" json:"updated_at"`
}

// Limits returns the limits for the given tier and whether an entry exists.
func (c TierCatalog) Limits(t Tier) (TierLimits, bool) {
	l, ok := c.Tiers[t]
	return l, ok
}

// Validate checks that the catalog covers every known tier and every entry's
// limits are well-formed.
func (c TierCatalog) Validate() error {
	for _, t := range AllTiers {
		l, ok := c.Tiers[t]
		if !ok {
			return fmt.Errorf("catalog is missing tier %q", t)
		}
		if err := l.Validate(); err != nil {
			return fmt.Errorf("tier %q: %w", t, err)
		}
	}
	return nil
}

// QuotaNotification is an immutable record of a threshold crossing, kept on
// the ledger for the current period only.
type QuotaNotification struct {
	Kind       NotificationKind `bson:"kind" json:"kind"`
	CounterKey string           `bson:"counter_key" json:"counter_key"`
	Used       int              `bson:"used" json:"used"`
	Limit      int              `bson:"limit" json:"limit"`
	Message    string           `bson:"message" json:"message"`
}

// UsageLedger is one user's consumption record for the current period.
// Counter values never exceed the governing limit for bounded resources;
// unbounded resources are incremented for observability only.
type UsageLedger struct {
	UserID         string              `bson:"user_id" json:"user_id"`
	Usage          map[string]int      `bson:"usage" json:"usage"`
	QuotaResetDate time.Time           `bson:"quota_reset_date" json:"quota_reset_date"`
	PeriodEnd      *time.Time          `bson:"period_end,omitempty" json:"period_end,omitempty"`
	Notifications  []QuotaNotification `bson:"notifications" json:"notifications"`
	DateCreated    time.Time           `bson:"date_created" json:"date_created"`
	DateUpdated    time.Time           `bson:"date_updated" json:"date_updated"`
}

// Used returns the current count for a counter key, treating absent keys as zero.
func (l *UsageLedger) Used(key string) int {
	if l == nil || l.Usage == nil {
		return 0
	}
	return l.Usage[key]
}

// Stale reports whether the ledger's period has elapsed. A stale ledger must
// be rolled over before its counts are trusted for any decision.
func (l *UsageLedger) Stale(now time.Time) bool {
	return l != nil && !l.QuotaResetDate.After(now)
}

// ResourceUsage is one row of a quota summary: consumption against a limit.
// Remaining is Unlimited when the limit is Unlimited, otherwise
// max(0, limit-used).
type ResourceUsage struct {
	Used      int `json:"used"`
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`
}

// NewResourceUsage computes the Remaining field per the sentinel rule.
func NewResourceUsage(used, limit int) ResourceUsage {
	remaining := Unlimited
	if limit != Unlimited {
		remaining = limit - used
		if remaining < 0 {
			remaining = 0
		}
	}
	return ResourceUsage{Used: used, Limit: limit, Remaining: remaining}
}

// QuotaSummary is the caller-facing point-in-time usage view.
type QuotaSummary struct {
	Jobs          ResourceUsage `json:"jobs"`
	CoverLetters  ResourceUsage `json:"cover_letters"`
	ResumeCredits ResourceUsage `json:"resume_credits"`
	EmailLookups  ResourceUsage `json:"email_lookups"`
	ResetDate     time.Time     `json:"reset_date"`
}

// ContactMatch is a resolved work email from the contact-lookup provider.
type ContactMatch struct {
	Email      string `json:"email"`
	Confidence int    `json:"confidence"`
}

// ConsumeResult is the outcome of a quota consumption attempt. Denied is a
// normal, expected result, not an error: callers branch on Allowed.
type ConsumeResult struct {
	Allowed   bool          `json:"allowed"`
	Action    MeteredAction `json:"action"`
	Used      int           `json:"used"`
	Limit     int           `json:"limit"`
	ResetDate time.Time     `json:"reset_date"`
}

// DeniedError renders the denial as the caller-facing quota error, carrying
// enough detail for an upgrade prompt rather than a retry prompt.
func (r ConsumeResult) DeniedError() *AppError {
	return NewAppErrorWithDetails(
		ErrCodeLimitQuotaExceeded,
		fmt.Sprintf("quota exceeded for %s: limit %d, resets on %s",
			r.Action, r.Limit, r.ResetDate.UTC().Format(time.RFC3339)),
		nil,
		map[string]any{
			"action":     string(r.Action),
			"used":       r.Used,
			"limit":      r.Limit,
			"reset_date": r.ResetDate.UTC().Format(time.RFC3339),
		},
	)
}
