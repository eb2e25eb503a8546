package types

// Durability classifies how resistant a memory is to the decay worker.
// The three tiers form a total order used by consolidation (which upgrades
// a merged memory to the highest durability among its sources) and by
// decay (which multiplies the effective decay rate by a tier-specific
// factor).
type Durability string

const (
	// DurabilityEphemeral decays at the full base rate and is eligible for
	// session-scoped cleanup once superseded or archived.
	DurabilityEphemeral Durability = "ephemeral"

	// DurabilityDurable decays at 0.15x the ephemeral rate. Default tier
	// for memories that don't specify one.
	DurabilityDurable Durability = "durable"

	// DurabilityPermanent is immune to decay entirely, same as pinning.
	DurabilityPermanent Durability = "permanent"
)

// durabilityRank gives each tier its position in the total order
// ephemeral < durable < permanent, used by Max and comparisons.
var durabilityRank = map[Durability]int{
	DurabilityEphemeral: 0,
	DurabilityDurable:   1,
	DurabilityPermanent: 2,
}

// IsValidDurability reports whether d is one of the three known tiers.
// An empty string is not valid here — callers needing "unset defaults to
// durable" should check for "" before calling this.
func IsValidDurability(d Durability) bool {
	_, ok := durabilityRank[d]
	return ok
}

// Mod returns the decay worker's multiplier for a tier:
// 0.15 for durable, 1.0 otherwise (permanent is skipped outright by the
// decay worker before this is consulted, so its value here is moot but
// kept at 1.0 for completeness).
func (d Durability) Mod() float64 {
	if d == DurabilityDurable {
		return 0.15
	}
	return 1.0
}

// MaxDurability returns the highest-ranked tier among the given values,
// defaulting to DurabilityDurable if ds is empty or contains only unknown
// values. Used by the consolidation worker to aggregate cluster durability.
func MaxDurability(ds ...Durability) Durability {
	best := DurabilityDurable
	bestRank := durabilityRank[DurabilityDurable]
	seen := false
	for _, d := range ds {
		rank, ok := durabilityRank[d]
		if !ok {
			continue
		}
		if !seen || rank > bestRank {
			best = d
			bestRank = rank
			seen = true
		}
	}
	return best
}
