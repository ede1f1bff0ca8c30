package edge

import "time"

// MFAPolicy decides whether a tier demands a fresh multi-factor assertion.
// The edge only checks the claim the token service embedded; challenge
// delivery lives outside this module.
type MFAPolicy interface {
	// FreshnessFor returns the maximum acceptable MFA age for a tier.
	// ok false means the tier has no MFA requirement.
	FreshnessFor(tier Tier) (maxAge time.Duration, ok bool)
}

// NoMFA is the policy used when multi-factor enforcement is disabled.
type NoMFA struct{}

// FreshnessFor implements MFAPolicy.
func (NoMFA) FreshnessFor(Tier) (time.Duration, bool) { return 0, false }

// TierMFAPolicy demands fresh MFA for the listed tiers.
type TierMFAPolicy struct {
	MaxAge map[Tier]time.Duration
}

// FreshnessFor implements MFAPolicy.
func (p TierMFAPolicy) FreshnessFor(tier Tier) (time.Duration, bool) {
	age, ok := p.MaxAge[tier]
	return age, ok
}
