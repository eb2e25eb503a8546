package storage

import (
	"context"

	"github.com/scrypster/memento/pkg/types"
)

// MemoryLink is a typed, weighted edge between two memories in the
// memory_links table — the graph substrate the retrieval pipeline's
// spreading activation, the consolidation worker's derived_from lineage,
// and the auto-linker walk.
type MemoryLink struct {
	ID        string
	SourceID  string
	TargetID  string
	Type      string
	Weight    float64
}

// FactHit pairs a stored fact with its cosine similarity to a query vector.
type FactHit struct {
	Fact       types.Fact
	Similarity float64
}

// AntiPatternHit pairs a stored anti-pattern with its cosine similarity to
// a query vector.
type AntiPatternHit struct {
	AntiPattern types.AntiPattern
	Similarity  float64
}

// FeedbackRollup aggregates injected-memory feedback audit rows for one
// memory, used by the decay worker's feedback_mod term.
type FeedbackRollup struct {
	UsefulCount    int
	NotUsefulCount int
}

// UsefulRatio returns UsefulCount / (UsefulCount + NotUsefulCount), or 0
// when no feedback has been recorded.
func (r FeedbackRollup) UsefulRatio() float64 {
	total := r.UsefulCount + r.NotUsefulCount
	if total == 0 {
		return 0
	}
	return float64(r.UsefulCount) / float64(total)
}

// AuditEntry is one row appended to the audit log. Details is marshaled to
// JSON; callers pass plain maps.
type AuditEntry struct {
	Action    string
	MemoryID  string
	Actor     string
	SessionID string
	UserID    string
	Details   map[string]interface{}
}

// GraphStore is implemented by storage backends that expose the memory
// graph's typed edge substrate beyond the project-tree CONTAINS lookups
// already on MemoryStore (GetMemoriesByRelationType). The engine's
// retrieval, consolidation, pattern-extraction and auto-linker pipelines
// depend on this narrower interface rather than the concrete backend type,
// following the same capability-check idiom the teacher uses for
// storage.EmbeddingProvider.
type GraphStore interface {
	// CreateTypedLink creates (or no-ops if already present) a weighted
	// edge sourceID -> targetID of the given type.
	CreateTypedLink(ctx context.Context, sourceID, targetID, linkType string, weight float64) error

	// StrengthenLink increments an existing edge's weight by increment
	// (creating it at that weight if absent) and returns the resulting
	// weight, clamped to [0, 1].
	StrengthenLink(ctx context.Context, sourceID, targetID, linkType string, increment float64) (float64, error)

	// LinksFrom returns outgoing edges from memoryID, optionally filtered
	// to a single type (empty string means all types).
	LinksFrom(ctx context.Context, memoryID string, linkType string) ([]MemoryLink, error)

	// LinksTo returns incoming edges to memoryID, optionally filtered to a
	// single type.
	LinksTo(ctx context.Context, memoryID string, linkType string) ([]MemoryLink, error)

	// BulkIncidentWeight returns, per memory id, the sum of all incident
	// (incoming + outgoing) edge weights, fetched in one query so the
	// decay worker's graph floor can be computed without N+1 queries.
	BulkIncidentWeight(ctx context.Context, memoryIDs []string) (map[string]float64, error)

	// ContradictingPairs returns (sourceID, targetID) pairs connected by a
	// "contradicts" edge where both ends are in memoryIDs.
	ContradictingPairs(ctx context.Context, memoryIDs []string) ([][2]string, error)
}

// FactStore is implemented by backends that support the fact
// sub-collection (internal/engine/fact_extractor.go).
type FactStore interface {
	StoreFact(ctx context.Context, fact types.Fact, embedding []float64) error
	SearchFacts(ctx context.Context, query []float64, limit int) ([]FactHit, error)
}

// AntiPatternStore is implemented by backends that support the
// anti-pattern sub-collection (SPEC_FULL.md §4.6 stage 7, §3).
type AntiPatternStore interface {
	StoreAntiPattern(ctx context.Context, ap types.AntiPattern, embedding []float64) error
	SearchAntiPatterns(ctx context.Context, query []float64, domain string, limit int, minSimilarity float64) ([]AntiPatternHit, error)
	IncrementAntiPatternTriggered(ctx context.Context, id string) error
}

// AuditStore is implemented by backends that support the append-only
// audit log and its feedback rollups.
type AuditStore interface {
	WriteAudit(ctx context.Context, entry AuditEntry) error
	FeedbackRollups(ctx context.Context, memoryIDs []string) (map[string]FeedbackRollup, error)
}

// EmbeddingScanner is implemented by backends that can return every stored
// embedding in bulk, used by the consolidation worker's O(n^2) clustering
// pass (which needs the whole active set in memory, not just ANN-search
// results against one query vector).
type EmbeddingScanner interface {
	AllEmbeddings(ctx context.Context, limit int) (map[string][]float64, error)
}
