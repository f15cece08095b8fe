// Package catalog manages the tier catalog: the authoritative, admin-writable
// mapping from subscription tier to resource limits. Exactly one catalog
// document exists at a time; every quota decision reads it.
package catalog

import (
	"jobtrail/internal/types"
)

// defaults defines the hardcoded tier limits used as the fail-safe registry
// when the catalog document names no entry for a tier.
//
//	| Tier  | Jobs | Cover Letters | Resume Credits | Email Lookups |
//	|-------|------|---------------|----------------|---------------|
//	| free  | 50   | 10            | 10             | 2             |
//	| pro   | -1   | 25            | 50             | 50            |
//	| power | -1   | -1            | -1             | 100           |
//
// -1 is the unbounded sentinel; enforcement treats it as no limit.
var defaults = map[types.Tier]types.TierLimits{
	types.TierFree: {
		Jobs:          50,
		CoverLetters:  10,
		ResumeCredits: 10,
		EmailLookups:  2,
	},
	types.TierPro: {
		Jobs:          types.Unlimited,
		CoverLetters:  25,
		ResumeCredits: 50,
		EmailLookups:  50,
	},
	types.TierPower: {
		Jobs:          types.Unlimited,
		CoverLetters:  types.Unlimited,
		ResumeCredits: types.Unlimited,
		EmailLookups:  100,
	},
}

// Defaults returns a fresh catalog populated with the hardcoded tier limits.
// Callers receive a copy so the package-level table cannot be mutated.
func Defaults() types.TierCatalog {
	m := make(map[types.Tier]types.TierLimits, len(defaults))
	for k, v := range defaults {
		m[k] = v
	}
	return types.TierCatalog{Tiers: m}
}

// DefaultLimits returns the hardcoded limits for the given tier, falling back
// to the most restrictive (free) limits for unknown tiers to fail safely.
func DefaultLimits(tier types.Tier) types.TierLimits {
	if l, ok := defaults[tier]; ok {
		return l
	}
	return defaults[types.DefaultTier]
}
