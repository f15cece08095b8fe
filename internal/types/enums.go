package types

// Tier identifies the subscription level for a user account.
type Tier string

const (
	TierFree  Tier = "free"
	TierPro   Tier = "pro"
	TierPower Tier = "power"
)

// DefaultTier is the fallback tier used when a user's tier string is not
// recognized by the catalog. Display paths degrade to it; consumption paths
// never do.
const DefaultTier = TierFree

// AllTiers lists every valid tier. Used by catalog validation to ensure an
// uploaded tier-limits document covers the full set.
var AllTiers = []Tier{TierFree, TierPro, TierPower}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierPower:
		return true
	}
	return false
}

// MeteredAction is the closed set of operations subject to quota accounting.
type MeteredAction string

const (
	ActionCoverLetter    MeteredAction = "ai_cover_letter"
	ActionResumeGenerate MeteredAction = "ai_resume_generate"
	ActionResumeRate     MeteredAction = "ai_resume_rate"
	ActionEmailLookup    MeteredAction = "email_lookup"
)

// AllMeteredActions lists every metered action.
var AllMeteredActions = []MeteredAction{
	ActionCoverLetter,
	ActionResumeGenerate,
	ActionResumeRate,
	ActionEmailLookup,
}

// Valid reports whether a is one of the known metered actions.
func (a MeteredAction) Valid() bool {
	switch a {
	case ActionCoverLetter, ActionResumeGenerate, ActionResumeRate, ActionEmailLookup:
		return true
	}
	return false
}

// Ledger counter keys. Resume generation and resume rating draw from a single
// resume-credit pool, so both actions map onto one counter.
const (
	CounterCoverLetters = "ai_cover_letter"
	CounterResumes      = "ai_resume"
	CounterEmailLookups = "email_lookup"
)

// AllCounterKeys lists the distinct ledger counter keys.
var AllCounterKeys = []string{CounterCoverLetters, CounterResumes, CounterEmailLookups}

// CounterKey returns the ledger counter this action increments.
func (a MeteredAction) CounterKey() string {
	switch a {
	case ActionCoverLetter:
		return CounterCoverLetters
	case ActionResumeGenerate, ActionResumeRate:
		return CounterResumes
	case ActionEmailLookup:
		return CounterEmailLookups
	default:
		return string(a)
	}
}

// Unlimited is the sentinel limit value meaning "no cap". It is distinct from
// zero, which means the tier grants nothing for that resource.
const Unlimited = -1

// NotificationKind classifies a quota threshold crossing.
type NotificationKind string

const (
	NotificationWarning  NotificationKind = "warning"
	NotificationExceeded NotificationKind = "exceeded"
)

// ActorRole defines authorization levels for API callers.
type ActorRole string

const (
	RoleUser  ActorRole = "user"
	RoleAdmin ActorRole = "admin"
)
