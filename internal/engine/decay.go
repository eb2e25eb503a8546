// Package engine provides the memory enrichment and management engine.
package engine

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

const (
	// decayScoreThreshold is the minimum importance delta required to write
	// a decayed value back to storage.
	decayScoreThreshold = 0.001

	// decayScanPageSize bounds how many memories are pulled per List call
	// while scrolling the full active set.
	decayScanPageSize = 200

	// graphFloorHigh/Mid/Low are the importance floors a well-connected
	// memory is never decayed below, keyed by incident related_to weight.
	graphFloorHighWeight = 6.0
	graphFloorMidWeight  = 3.0
	graphFloorHigh       = 0.3
	graphFloorMid        = 0.15
	graphFloorLow        = 0.05
)

// DecayResult summarizes one pass of the decay worker.
type DecayResult struct {
	Processed int
	Decayed   int
	Stable    int
}

// DecayManager runs the periodic importance-decay pass over every
// non-superseded memory. A memory's importance erodes over time unless it
// is pinned or permanent, moderated by how stable it is, how often it's
// accessed, how useful retrieval feedback has judged it, its durability
// tier, and a floor derived from how connected it is in the relationship
// graph. This unifies what used to be two separate, disagreeing decay
// formulas (a half-life-with-importance-average pass and an
// access-boosted power-of-2 pass) into the single multi-modifier formula
// below; effectiveDecay and graphFloor are the seams where each legacy
// approach used to diverge.
type DecayManager struct {
	baseRate    float64
	memoryStore storage.MemoryStore
	graphStore  storage.GraphStore
	auditStore  storage.AuditStore
}

// NewDecayManager returns a DecayManager configured with baseRate (the
// decay worker's base_rate multiplier, typically
// config.Memory.ImportanceDecayRate). graphStore and auditStore may be nil
// — when absent, the graph floor defaults to graphFloorLow and feedback_mod
// defaults to 1 for every memory, which keeps the worker usable against a
// MemoryStore that doesn't implement the capability interfaces yet.
func NewDecayManager(baseRate float64, memoryStore storage.MemoryStore, graphStore storage.GraphStore, auditStore storage.AuditStore) *DecayManager {
	if baseRate <= 0 {
		baseRate = 0.02
	}
	return &DecayManager{
		baseRate:    baseRate,
		memoryStore: memoryStore,
		graphStore:  graphStore,
		auditStore:  auditStore,
	}
}

// accessMod returns 1/(1 + 0.1*accessCount): frequently-accessed memories
// decay more slowly.
func accessMod(accessCount int) float64 {
	return 1.0 / (1.0 + 0.1*float64(accessCount))
}

// feedbackMod returns 1 - 0.5*usefulRatio when feedback has been recorded,
// else 1. Memories that retrieval feedback has repeatedly marked useful
// decay more slowly.
func feedbackMod(rollup storage.FeedbackRollup) float64 {
	if rollup.UsefulCount+rollup.NotUsefulCount == 0 {
		return 1.0
	}
	return 1.0 - 0.5*rollup.UsefulRatio()
}

// effectiveDecay combines the base rate with stability, access frequency,
// feedback history and durability tier into the per-memory decay rate
// used by the exponential falloff below.
func effectiveDecay(baseRate, stability float64, accessCount int, rollup storage.FeedbackRollup, durability types.Durability) float64 {
	return baseRate * (1 - clamp01(stability)) * accessMod(accessCount) * feedbackMod(rollup) * durability.Mod()
}

// graphFloor returns the importance floor implied by a memory's incident
// related_to edge weight: well-connected memories are never decayed below
// a level that would make them unreachable from their neighbors.
func graphFloor(incidentWeight float64) float64 {
	switch {
	case incidentWeight >= graphFloorHighWeight:
		return graphFloorHigh
	case incidentWeight >= graphFloorMidWeight:
		return graphFloorMid
	default:
		return graphFloorLow
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// refTime returns the reference timestamp decay is measured from: the
// last access if known, else creation time.
func refTime(mem *types.Memory) time.Time {
	if mem.LastAccessedAt != nil && !mem.LastAccessedAt.IsZero() {
		return *mem.LastAccessedAt
	}
	return mem.CreatedAt
}

// decayOne computes the new importance for mem at instant now, given its
// bulk-fetched incident graph weight and feedback rollup. It does not
// mutate mem or persist anything; callers decide whether to write back.
func decayOne(mem *types.Memory, now time.Time, baseRate, incidentWeight float64, rollup storage.FeedbackRollup) (newImportance float64, skip bool) {
	if mem.Pinned || mem.Durability == types.DurabilityPermanent {
		return mem.Importance, true
	}

	durability := mem.Durability
	if durability == "" || !types.IsValidDurability(durability) {
		durability = types.DurabilityDurable
	}

	hours := now.Sub(refTime(mem)).Hours()
	if hours < 0 {
		hours = 0
	}

	decay := effectiveDecay(baseRate, mem.Stability, mem.AccessCount, rollup, durability)
	decayed := mem.Importance * math.Pow(1-decay, hours)

	floor := graphFloor(incidentWeight)
	if decayed < floor {
		decayed = floor
	}
	return clamp01(decayed), false
}

// Run scans every non-superseded, non-deleted memory and applies one pass
// of decay, persisting any memory whose importance moved by more than
// decayScoreThreshold. Per-memory storage errors are logged and skipped;
// they never abort the batch. now is a parameter so tests can run the pass
// deterministically against a fixed instant.
func (d *DecayManager) Run(ctx context.Context, now time.Time) (DecayResult, error) {
	var result DecayResult
	page := 1

	for {
		batch, err := d.memoryStore.List(ctx, storage.ListOptions{
			Page:  page,
			Limit: decayScanPageSize,
		})
		if err != nil {
			return result, err
		}
		if len(batch.Items) == 0 {
			break
		}

		ids := make([]string, 0, len(batch.Items))
		for i := range batch.Items {
			if batch.Items[i].SupersededBy == "" {
				ids = append(ids, batch.Items[i].ID)
			}
		}

		incidentWeights := map[string]float64{}
		if d.graphStore != nil && len(ids) > 0 {
			incidentWeights, err = d.graphStore.BulkIncidentWeight(ctx, ids)
			if err != nil {
				log.Printf("decay: BulkIncidentWeight failed, falling back to lowest floor: %v", err)
				incidentWeights = map[string]float64{}
			}
		}

		rollups := map[string]storage.FeedbackRollup{}
		if d.auditStore != nil && len(ids) > 0 {
			rollups, err = d.auditStore.FeedbackRollups(ctx, ids)
			if err != nil {
				log.Printf("decay: FeedbackRollups failed, assuming no feedback: %v", err)
				rollups = map[string]storage.FeedbackRollup{}
			}
		}

		for i := range batch.Items {
			mem := &batch.Items[i]
			if mem.SupersededBy != "" {
				continue
			}
			result.Processed++

			newImportance, skip := decayOne(mem, now, d.baseRate, incidentWeights[mem.ID], rollups[mem.ID])
			if skip {
				result.Stable++
				continue
			}

			if math.Abs(newImportance-mem.Importance) <= decayScoreThreshold {
				result.Stable++
				continue
			}

			mem.Importance = newImportance
			if err := d.memoryStore.Update(ctx, mem); err != nil {
				log.Printf("decay: failed to persist memory %s: %v", mem.ID, err)
				continue
			}
			result.Decayed++
		}

		if !batch.HasMore {
			break
		}
		page++
	}

	return result, nil
}
