package quota

import (
	"fmt"

	"jobtrail/internal/types"
)

// warningThresholdPct is the fraction of a limit at which a usage warning is
// raised. Computed in floating point so a 10-unit limit warns at 8, not 7.
const warningThresholdPct = 80.0

// jobsResourceKey names the job-slot resource in notifications. Job usage is
// counted live from job records, never stored as a ledger counter.
const jobsResourceKey = "jobs"

// resourceLabels maps notification resource keys to human-readable names
// used in notification messages.
var resourceLabels = map[string]string{
	jobsResourceKey:           "job applications",
	types.CounterCoverLetters: "AI cover letters",
	types.CounterResumes:      "AI resume credits",
	types.CounterEmailLookups: "email lookups",
}

// DeriveNotifications computes the full notification list for a user's
// current standing. The result replaces any previously stored list; it is
// derived from counts, never appended to, so it can neither duplicate nor
// outlive the usage that justified it.
//
// Per resource, at most one notification is produced: exceeded at 100% of
// the limit, warning at 80%. Unlimited resources and resources the tier does
// not grant produce nothing.
func DeriveNotifications(limits types.TierLimits, jobsUsed int, ledger *types.UsageLedger) []types.QuotaNotification {
	rows := []struct {
		key   string
		used  int
		limit int
	}{
		{jobsResourceKey, jobsUsed, limits.Jobs},
		{types.CounterCoverLetters, ledger.Used(types.CounterCoverLetters), limits.CoverLetters},
		{types.CounterResumes, ledger.Used(types.CounterResumes), limits.ResumeCredits},
		{types.CounterEmailLookups, ledger.Used(types.CounterEmailLookups), limits.EmailLookups},
	}

	notifs := []types.QuotaNotification{}
	for _, row := range rows {
		if n := thresholdNotification(row.key, row.used, row.limit); n != nil {
			notifs = append(notifs, *n)
		}
	}
	return notifs
}

// thresholdNotification returns the notification for one resource, or nil
// when usage is below the warning threshold.
func thresholdNotification(key string, used, limit int) *types.QuotaNotification {
	if limit <= 0 {
		// Unlimited (-1) never notifies; a zero grant has nothing to warn about.
		return nil
	}

	pct := float64(used) / float64(limit) * 100

	switch {
	case pct >= 100:
		return &types.QuotaNotification{
			Kind:       types.NotificationExceeded,
			CounterKey: key,
			Used:       used,
			Limit:      limit,
			Message:    fmt.Sprintf("You have reached your limit of %d %s", limit, resourceLabels[key]),
		}
	case pct >= warningThresholdPct:
		return &types.QuotaNotification{
			Kind:       types.NotificationWarning,
			CounterKey: key,
			Used:       used,
			Limit:      limit,
			Message:    fmt.Sprintf("You have used %d of %d %s", used, limit, resourceLabels[key]),
		}
	default:
		return nil
	}
}

// newlyRaised returns the notifications in next that were not present in
// prev, comparing by resource and kind. Used to publish only fresh threshold
// crossings, not re-deliveries of standing state.
func newlyRaised(prev, next []types.QuotaNotification) []types.QuotaNotification {
	seen := make(map[string]bool, len(prev))
	for _, n := range prev {
		seen[n.CounterKey+"/"+string(n.Kind)] = true
	}

	var fresh []types.QuotaNotification
	for _, n := range next {
		if !seen[n.CounterKey+"/"+string(n.Kind)] {
			fresh = append(fresh, n)
		}
	}
	return fresh
}
