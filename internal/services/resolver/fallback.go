package resolver

// RequirementSystem is the sentinel requirement a game declares when any
// runtime will do; it skips registry lookup entirely.
const RequirementSystem = "system"

// Tier is one fallback step. The policy orders tiers; the resolver
// evaluates them lazily, stopping at the first usable path.
type Tier int

const (
	// TierInstalled uses the exact requested version already in the cache.
	TierInstalled Tier = iota
	// TierFetch downloads the exact requested version from the registry.
	TierFetch
	// TierCachedAlternate substitutes the most recently installed cached
	// version, flagged so the caller can warn the user.
	TierCachedAlternate
	// TierSystem falls back to an unmanaged host-installed runtime.
	TierSystem
)

// Policy decides the substitution order when the exact requested version
// may be unobtainable. It never claims success itself; exhausting the plan
// is what makes a resolution fail.
type Policy struct{}

func (Policy) Decide(requirement string) []Tier {
	if requirement == "" || requirement == RequirementSystem {
		return []Tier{TierCachedAlternate, TierSystem}
	}
	return []Tier{TierInstalled, TierFetch, TierCachedAlternate, TierSystem}
}
