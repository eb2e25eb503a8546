package engine

import (
	"context"
	"log"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scrypster/memento/internal/embedding"
	"github.com/scrypster/memento/internal/ephemeral"
	"github.com/scrypster/memento/internal/ml"
	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

// RetrievalQuery describes one call to RetrievalEngine.Retrieve.
type RetrievalQuery struct {
	Text      string
	Embedding []float64

	Types         []string
	Domains       []string
	Tags          []string
	MinImportance float64
	MinConfidence float64
	After, Before time.Time

	ExpandRelationships bool
	RelationshipTypes   []string
	MaxDepth            int

	Limit int

	SessionID   string
	CurrentFile string
	CurrentTask string
	Username    string

	// BrowseMode disables the stage-10 access-tracking side effects, for
	// read-only UI browsing that shouldn't bump importance or last_accessed.
	BrowseMode bool
}

// RetrievalResult is one ranked hit returned by Retrieve.
type RetrievalResult struct {
	Memory        *types.Memory
	Score         float64
	Similarity    float64
	GraphDistance int
	RetrievalPath []string

	isAntiPattern bool
}

const (
	graphActivationThreshold = 0.20
	rerankerCacheTTL         = 60 * time.Second
	defaultGraphMaxDepth     = 2
	defaultRetrievalLimit    = 10
)

// RetrievalEngine implements the ten-stage memory retrieval pipeline: query
// embedding, vector search, fact-level search, spreading-activation graph
// expansion, document-sibling boosting, session-context boosting,
// anti-pattern injection, reranking, contradiction/duplicate inhibition and
// access tracking. It generalizes SearchOrchestrator.Search/
// calculateRelevance, whose weighted-sum scorer seeds stage 2 when no
// query vector is available; stage 8 falls back to a recency/stability/
// confidence multiplier when no trained reranker is cached.
type RetrievalEngine struct {
	memoryStore      storage.MemoryStore
	graphStore       storage.GraphStore
	factStore        storage.FactStore
	antiPatternStore storage.AntiPatternStore
	embeddingScanner storage.EmbeddingScanner
	embedder         *embedding.Wrapper
	ephemeralStore   ephemeral.Store
	legacyScorer     *SearchOrchestrator

	accessWG sync.WaitGroup

	rerankerMu       sync.Mutex
	cachedReranker   *ml.Reranker
	rerankerCachedAt time.Time
}

// NewRetrievalEngine wires a RetrievalEngine against the given store and
// ancillary services. graphStore/factStore/antiPatternStore/
// embeddingScanner may be nil when the concrete store doesn't implement
// those capabilities yet; the corresponding pipeline stages degrade to
// no-ops rather than failing the whole retrieval. embedder and
// ephemeralStore may also be nil (embedding-less deployments skip vector
// search entirely and fall back to the legacy text scorer only).
func NewRetrievalEngine(
	store storage.MemoryStore,
	graphStore storage.GraphStore,
	factStore storage.FactStore,
	antiPatternStore storage.AntiPatternStore,
	embeddingScanner storage.EmbeddingScanner,
	embedder *embedding.Wrapper,
	ephemeralStore ephemeral.Store,
) *RetrievalEngine {
	return &RetrievalEngine{
		memoryStore:      store,
		graphStore:       graphStore,
		factStore:        factStore,
		antiPatternStore: antiPatternStore,
		embeddingScanner: embeddingScanner,
		embedder:         embedder,
		ephemeralStore:   ephemeralStore,
		legacyScorer:     NewSearchOrchestrator(store),
	}
}

// Retrieve runs the full pipeline and returns up to q.Limit results.
func (r *RetrievalEngine) Retrieve(ctx context.Context, q RetrievalQuery) ([]RetrievalResult, error) {
	if q.Limit <= 0 {
		q.Limit = defaultRetrievalLimit
	}
	if q.MaxDepth <= 0 {
		q.MaxDepth = defaultGraphMaxDepth
	}

	queryVector := q.Embedding
	if queryVector == nil && q.Text != "" && r.embedder != nil {
		var err error
		queryVector, err = r.embedder.Embed(ctx, q.Text, embedding.Query)
		if err != nil {
			log.Printf("retrieval: query embedding failed, continuing text-only: %v", err)
		}
	}

	results := map[string]*RetrievalResult{}
	order := []string{}
	upsertTagged := func(mem *types.Memory, score, similarity float64, distance int, path []string, antiPattern bool) {
		if existing, ok := results[mem.ID]; ok {
			if score > existing.Score {
				existing.Score = score
				existing.Similarity = similarity
			}
			return
		}
		results[mem.ID] = &RetrievalResult{
			Memory:        mem,
			Score:         score,
			Similarity:    similarity,
			GraphDistance: distance,
			RetrievalPath: path,
			isAntiPattern: antiPattern,
		}
		order = append(order, mem.ID)
	}
	upsert := func(mem *types.Memory, score, similarity float64, distance int, path []string) {
		upsertTagged(mem, score, similarity, distance, path, false)
	}

	// Stage 2: vector search over the main collection, or a text-only
	// fallback (using the legacy weighted scorer) when no query vector is
	// available at all.
	if queryVector != nil && r.embeddingScanner != nil {
		hits, err := r.vectorSearch(ctx, queryVector, q, q.Limit*2)
		if err != nil {
			log.Printf("retrieval: vector search failed: %v", err)
		}
		for _, h := range hits {
			score := h.similarity * math.Max(h.mem.Importance, 0.15)
			upsert(h.mem, score, h.similarity, 0, []string{h.mem.ID})
		}
	} else if q.Text != "" {
		r.textOnlyFallback(ctx, q, upsert)
	}

	// Stage 3: fact-level search, lifted to parent memories.
	if queryVector != nil && r.factStore != nil {
		existing := func(id string) *RetrievalResult {
			return results[id]
		}
		r.factSearch(ctx, queryVector, q.Limit, existing, upsert)
	}

	// Stage 4: graph expansion via spreading activation.
	if q.ExpandRelationships && r.graphStore != nil && len(order) > 0 {
		seedOrder := append([]string(nil), order...)
		sort.SliceStable(seedOrder, func(i, j int) bool {
			return results[seedOrder[i]].Score > results[seedOrder[j]].Score
		})
		r.spreadingActivation(ctx, seedOrder, q, upsert)
	}

	// Stage 5: document-sibling boost.
	if r.graphStore != nil {
		r.documentSiblingBoost(ctx, order, upsert)
	}

	// Stage 6: session-context filtering and boosts.
	r.applyContextBoosts(ctx, results, q)

	// Stage 7: anti-pattern injection.
	if r.antiPatternStore != nil && queryVector != nil {
		r.injectAntiPatterns(ctx, queryVector, q, upsertTagged)
	}

	list := make([]*RetrievalResult, 0, len(order))
	for _, id := range order {
		list = append(list, results[id])
	}

	// Stage 8: ranking.
	r.rank(ctx, list, q)

	// Stage 9: inhibition (contradiction scaling + near-duplicate suppression).
	list = r.inhibit(ctx, list)

	// Stage 10: trim and track access.
	if len(list) > q.Limit {
		list = list[:q.Limit]
	}
	if !q.BrowseMode {
		r.trackAccess(list)
	}

	out := make([]RetrievalResult, len(list))
	for i, res := range list {
		out[i] = *res
	}
	return out, nil
}

// textOnlyFallback seeds results from the plain weighted-sum scorer when no
// query embedding is available (no embedder configured, or the embedding
// call failed). Reuses SearchOrchestrator.CalculateRelevance rather than
// duplicating its text/recency/importance/confidence weighting.
func (r *RetrievalEngine) textOnlyFallback(ctx context.Context, q RetrievalQuery, upsert func(*types.Memory, float64, float64, int, []string)) {
	listOpts := storage.ListOptions{Page: 1, Limit: q.Limit * 4, SortBy: "created_at", SortOrder: "desc"}
	if len(q.Domains) > 0 {
		listOpts.Filter = map[string]interface{}{"domain": q.Domains[0]}
	}
	batch, err := r.memoryStore.List(ctx, listOpts)
	if err != nil {
		log.Printf("retrieval: text-only fallback list failed: %v", err)
		return
	}

	queryLower := strings.ToLower(q.Text)
	for i := range batch.Items {
		mem := &batch.Items[i]
		if mem.DeletedAt != nil || mem.SupersededBy != "" || !matchesFilters(mem, q) {
			continue
		}
		score, _ := r.legacyScorer.CalculateRelevance(mem, queryLower)
		if score <= 0 {
			continue
		}
		upsert(mem, score, 0, 0, []string{mem.ID})
	}
}

type vectorHit struct {
	mem        *types.Memory
	similarity float64
}

// vectorSearch scans every stored embedding and returns the topN by cosine
// similarity to queryVector, applying q's type/domain/tag/time filters.
// Grounded on internal/storage/sqlite/search_provider.go's VectorSearch
// (same brute-force cosine scan), generalized to run against the
// EmbeddingScanner capability interface so it works identically against
// either backend.
func (r *RetrievalEngine) vectorSearch(ctx context.Context, queryVector []float64, q RetrievalQuery, topN int) ([]vectorHit, error) {
	embeddings, err := r.embeddingScanner.AllEmbeddings(ctx, 0)
	if err != nil {
		return nil, err
	}

	var hits []vectorHit
	for memID, vec := range embeddings {
		mem, err := r.memoryStore.Get(ctx, memID)
		if err != nil || mem.DeletedAt != nil || mem.SupersededBy != "" {
			continue
		}
		if !matchesFilters(mem, q) {
			continue
		}
		sim := cosineSimilarity(queryVector, vec)
		hits = append(hits, vectorHit{mem: mem, similarity: sim})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].similarity > hits[j].similarity })
	if len(hits) > topN {
		hits = hits[:topN]
	}
	return hits, nil
}

func matchesFilters(mem *types.Memory, q RetrievalQuery) bool {
	if mem.Importance < q.MinImportance {
		return false
	}
	if mem.Confidence < q.MinConfidence {
		return false
	}
	if len(q.Types) > 0 && !containsString(q.Types, mem.MemoryType) {
		return false
	}
	if len(q.Domains) > 0 && !containsString(q.Domains, mem.Domain) {
		return false
	}
	if len(q.Tags) > 0 && !anyTagMatches(q.Tags, mem.Tags) {
		return false
	}
	if !q.After.IsZero() && mem.CreatedAt.Before(q.After) {
		return false
	}
	if !q.Before.IsZero() && mem.CreatedAt.After(q.Before) {
		return false
	}
	return true
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func anyTagMatches(want, have []string) bool {
	for _, w := range want {
		if containsString(have, w) {
			return true
		}
	}
	return false
}

// cosineSimilarity computes cosine similarity between two equal-length
// vectors, returning 0 for mismatched lengths or a zero-magnitude vector.
// Matches internal/storage/sqlite/search_provider.go's cosineSimilarity
// exactly so vector-search ranking is consistent across the fallback
// full-text path and this pipeline.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// factSearch embeds the sub-collection search and lifts hits to their
// parent memory, per stage 3: a fact hit on a memory already present from
// stage 2 lifts that memory's score by x1.1; a fact hit on a new memory
// inserts it at similarity * max(importance, 0.15) * 1.15.
func (r *RetrievalEngine) factSearch(ctx context.Context, queryVector []float64, limit int, existing func(string) *RetrievalResult, upsert func(*types.Memory, float64, float64, int, []string)) {
	hits, err := r.factStore.SearchFacts(ctx, queryVector, limit)
	if err != nil {
		log.Printf("retrieval: fact search failed: %v", err)
		return
	}
	for _, h := range hits {
		if cur := existing(h.Fact.ParentID); cur != nil {
			cur.Score *= 1.1
			continue
		}
		parent, err := r.memoryStore.Get(ctx, h.Fact.ParentID)
		if err != nil {
			continue
		}
		score := h.Similarity * math.Max(parent.Importance, 0.15) * 1.15
		upsert(parent, score, h.Similarity, 0, []string{parent.ID})
	}
}

// spreadingActivation expands the graph from the top 5 highest-scored seeds
// concurrently, per stage 4.
func (r *RetrievalEngine) spreadingActivation(ctx context.Context, seedOrder []string, q RetrievalQuery, upsert func(*types.Memory, float64, float64, int, []string)) {
	seeds := seedOrder
	if len(seeds) > 5 {
		seeds = seeds[:5]
	}

	type activation struct {
		mem  *types.Memory
		act  float64
		path []string
	}

	var mu sync.Mutex
	best := map[string]activation{}

	g, gctx := errgroup.WithContext(ctx)
	for _, seedID := range seeds {
		seedID := seedID
		g.Go(func() error {
			return r.walkFromSeed(gctx, seedID, q, func(mem *types.Memory, act float64, path []string) {
				mu.Lock()
				defer mu.Unlock()
				if existing, ok := best[mem.ID]; !ok || act > existing.act {
					best[mem.ID] = activation{mem: mem, act: act, path: path}
				}
			})
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("retrieval: graph expansion failed: %v", err)
	}

	for _, a := range best {
		if a.act < graphActivationThreshold {
			continue
		}
		score := math.Min(a.act, 0.15)
		upsert(a.mem, score, 0, len(a.path)-1, a.path)
	}
}

// walkFromSeed performs a bounded BFS from seedID over related_to edges
// (or q.RelationshipTypes when set), calling visit for every node reached
// within q.MaxDepth hops with its spreading-activation score.
func (r *RetrievalEngine) walkFromSeed(ctx context.Context, seedID string, q RetrievalQuery, visit func(*types.Memory, float64, []string)) error {
	type frontierNode struct {
		id   string
		act  float64
		path []string
	}

	visited := map[string]bool{seedID: true}
	frontier := []frontierNode{{id: seedID, act: 1.0, path: []string{seedID}}}

	relTypes := q.RelationshipTypes
	if len(relTypes) == 0 {
		relTypes = []string{"related_to"}
	}

	for hop := 0; hop < q.MaxDepth; hop++ {
		var next []frontierNode
		for _, node := range frontier {
			var links []storage.MemoryLink
			for _, relType := range relTypes {
				l, err := r.graphStore.LinksFrom(ctx, node.id, relType)
				if err != nil {
					return err
				}
				links = append(links, l...)
			}
			for _, link := range links {
				if visited[link.TargetID] {
					continue
				}
				visited[link.TargetID] = true

				mem, err := r.memoryStore.Get(ctx, link.TargetID)
				if err != nil || mem.DeletedAt != nil {
					continue
				}

				weight := clamp(link.Weight, 0.01, 1.0)
				distanceDecay := 1.0 / (1.0 + float64(hop+1)*0.3)
				act := node.act * weight * distanceDecay * math.Max(mem.Importance, 0.5)

				path := append(append([]string{}, node.path...), mem.ID)
				visit(mem, act, path)
				next = append(next, frontierNode{id: mem.ID, act: act, path: path})
			}
		}
		frontier = next
		if len(frontier) == 0 {
			break
		}
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// documentSiblingBoost injects memories sharing metadata.document_id with
// an already-present result, per stage 5.
func (r *RetrievalEngine) documentSiblingBoost(ctx context.Context, order []string, upsert func(*types.Memory, float64, float64, int, []string)) {
	count := 0
	for _, id := range order {
		if count >= 5 {
			return
		}
		mem, err := r.memoryStore.Get(ctx, id)
		if err != nil || mem.Metadata == nil {
			continue
		}
		docID, ok := mem.Metadata["document_id"].(string)
		if !ok || docID == "" {
			continue
		}
		count++

		siblings, err := r.memoryStore.GetMemoriesByRelationType(ctx, mem.ID, "document_sibling")
		if err != nil {
			continue
		}
		for _, sib := range siblings {
			upsert(sib, 0.3*sib.Importance, 0, 1, []string{mem.ID, sib.ID})
		}
	}
}

// applyContextBoosts applies stage 6's session working-memory, current-file
// domain, and current-task overlap multipliers in place.
func (r *RetrievalEngine) applyContextBoosts(ctx context.Context, results map[string]*RetrievalResult, q RetrievalQuery) {
	var workingMemory map[string]bool
	if q.SessionID != "" && r.ephemeralStore != nil {
		if sess, ok := r.ephemeralStore.GetSession(ctx, q.SessionID); ok {
			workingMemory = make(map[string]bool, len(sess.WorkingMemory))
			for _, id := range sess.WorkingMemory {
				workingMemory[id] = true
			}
		}
	}

	fileDomain := ""
	if q.CurrentFile != "" {
		fileDomain = strings.ToLower(q.CurrentFile)
	}

	taskTokens := tokenize(q.CurrentTask)

	for _, res := range results {
		if workingMemory[res.Memory.ID] {
			res.Score *= 1.5
		}
		if fileDomain != "" && strings.Contains(fileDomain, strings.ToLower(res.Memory.Domain)) {
			res.Score *= 1.3
		}
		if len(taskTokens) > 0 {
			overlap := overlapCount(taskTokens, res.Memory.Tags)
			if overlap > 0 {
				res.Score *= 1 + 0.2*float64(overlap)
			}
		}
	}
}

func tokenize(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(strings.ToLower(s))
}

func overlapCount(tokens []string, tags []string) int {
	n := 0
	for _, tag := range tags {
		if containsString(tokens, strings.ToLower(tag)) {
			n++
		}
	}
	return n
}

// injectAntiPatterns implements stage 7: search the anti-pattern
// sub-collection and synthesize a warning RetrievalResult for each hit.
func (r *RetrievalEngine) injectAntiPatterns(ctx context.Context, queryVector []float64, q RetrievalQuery, upsertTagged func(*types.Memory, float64, float64, int, []string, bool)) {
	domainHint := domainHintFor(q)

	hits, err := r.antiPatternStore.SearchAntiPatterns(ctx, queryVector, domainHint, 3, 0.3)
	if err != nil {
		log.Printf("retrieval: anti-pattern search failed: %v", err)
		return
	}

	for _, h := range hits {
		score := h.Similarity * 0.8
		if domainHint != "" && h.AntiPattern.Domain == domainHint {
			score *= 1.4
		}
		score *= 1 + 0.1*math.Log2(1+float64(h.AntiPattern.TimesTriggered))

		mem := synthesizeAntiPatternMemory(h.AntiPattern)
		upsertTagged(mem, score, h.Similarity, 0, []string{mem.ID}, true)

		if err := r.antiPatternStore.IncrementAntiPatternTriggered(ctx, h.AntiPattern.ID); err != nil {
			log.Printf("retrieval: failed to increment anti-pattern trigger count for %s: %v", h.AntiPattern.ID, err)
		}
	}
}

func domainHintFor(q RetrievalQuery) string {
	if len(q.Domains) > 0 {
		return q.Domains[0]
	}
	if q.CurrentFile != "" {
		return NormalizeDomain(q.CurrentFile)
	}
	return ""
}

// synthesizeAntiPatternMemory renders a stored AntiPattern as a synthetic,
// unpersisted Memory so it can flow through the same ranking/inhibition
// stages as real results.
func synthesizeAntiPatternMemory(ap types.AntiPattern) *types.Memory {
	content := ap.Warning
	if ap.Alternative != "" {
		content = ap.Warning + " Prefer: " + ap.Alternative
	}
	return &types.Memory{
		ID:         "antipattern:" + ap.ID,
		Content:    content,
		Domain:     ap.Domain,
		MemoryType: "anti_pattern",
		Tags:       ap.Tags,
		Importance: 0.5,
		Confidence: 0.8,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

// rank implements stage 8: reranker model when cached, else the legacy
// weighted composite.
func (r *RetrievalEngine) rank(ctx context.Context, list []*RetrievalResult, q RetrievalQuery) {
	reranker := r.loadReranker(ctx)
	queryLower := strings.ToLower(q.Text)

	for _, res := range list {
		if reranker != nil {
			input := ml.RerankerInput{
				Importance:           res.Memory.Importance,
				Stability:            res.Memory.Stability,
				Confidence:           res.Memory.Confidence,
				AccessCount:          res.Memory.AccessCount,
				HoursSinceLastAccess: hoursSince(res.Memory.LastAccessedAt),
				HoursSinceCreation:   time.Since(res.Memory.CreatedAt).Hours(),
				IsPinned:             res.Memory.Pinned,
				DurabilityScore:      durabilityScore(res.Memory.Durability),
				Similarity:           res.Similarity,
				HasGraphPath:         res.GraphDistance > 0,
				RetrievalPathLen:     len(res.RetrievalPath),
			}
			res.Score = 0.7*reranker.Score(input) + 0.3*res.Similarity
			continue
		}

		recency := 1.0 / (1.0 + hoursSince(res.Memory.LastAccessedAt)*0.01)
		stability := 0.5 + 0.5*res.Memory.Stability
		confidence := 0.7 + 0.3*res.Memory.Confidence
		res.Score *= recency * stability * confidence
	}

	stableSortDesc(list)
}

func hoursSince(t *time.Time) float64 {
	if t == nil {
		return 0
	}
	return time.Since(*t).Hours()
}

func durabilityScore(d types.Durability) float64 {
	switch d {
	case types.DurabilityEphemeral:
		return 0.0
	case types.DurabilityPermanent:
		return 1.0
	default:
		return 0.5
	}
}

func stableSortDesc(list []*RetrievalResult) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].Score > list[j].Score })
}

// loadReranker returns the cached reranker model, refreshing from the
// ephemeral store at most once per rerankerCacheTTL.
func (r *RetrievalEngine) loadReranker(ctx context.Context) *ml.Reranker {
	if r.ephemeralStore == nil {
		return nil
	}

	r.rerankerMu.Lock()
	defer r.rerankerMu.Unlock()

	if r.cachedReranker != nil && time.Since(r.rerankerCachedAt) < rerankerCacheTTL {
		return r.cachedReranker
	}

	blob, ok := r.ephemeralStore.GetModelWeights(ctx, "ml:reranker_weights")
	if !ok {
		r.cachedReranker = nil
		r.rerankerCachedAt = time.Now()
		return nil
	}

	model, err := ml.UnmarshalRerankerModel(blob)
	if err != nil {
		log.Printf("retrieval: cached reranker weights corrupt: %v", err)
		r.cachedReranker = nil
		r.rerankerCachedAt = time.Now()
		return nil
	}
	reranker, err := ml.NewReranker(model)
	if err != nil {
		log.Printf("retrieval: cached reranker model invalid: %v", err)
		r.cachedReranker = nil
		r.rerankerCachedAt = time.Now()
		return nil
	}

	r.cachedReranker = reranker
	r.rerankerCachedAt = time.Now()
	return reranker
}

// inhibit implements stage 9: contradiction scaling and near-duplicate
// suppression by content hash, grounded on (and replacing the in-memory
// simulation in) ContradictionDetector.
func (r *RetrievalEngine) inhibit(ctx context.Context, list []*RetrievalResult) []*RetrievalResult {
	if r.graphStore != nil && len(list) > 1 {
		ids := make([]string, len(list))
		byID := make(map[string]*RetrievalResult, len(list))
		for i, res := range list {
			ids[i] = res.Memory.ID
			byID[res.Memory.ID] = res
		}

		pairs, err := r.graphStore.ContradictingPairs(ctx, ids)
		if err != nil {
			log.Printf("retrieval: contradiction lookup failed: %v", err)
		}
		for _, pair := range pairs {
			a, b := byID[pair[0]], byID[pair[1]]
			if a == nil || b == nil {
				continue
			}
			if a.Score < b.Score {
				a.Score *= 0.7
			} else {
				b.Score *= 0.7
			}
		}
	}

	seen := map[string]*RetrievalResult{}
	var deduped []*RetrievalResult
	for _, res := range list {
		hash := res.Memory.ContentHash
		if hash == "" {
			deduped = append(deduped, res)
			continue
		}
		if existing, ok := seen[hash]; ok {
			if res.Score > existing.Score {
				seen[hash] = res
				for i, d := range deduped {
					if d == existing {
						deduped[i] = res
						break
					}
				}
			}
			continue
		}
		seen[hash] = res
		deduped = append(deduped, res)
	}

	stableSortDesc(deduped)
	return deduped
}

// trackAccess spawns one tracked background update per non-anti-pattern
// result, per stage 10. Retrieve does not wait for these goroutines;
// Close waits for all of them, so callers that need a synchronous
// guarantee call Close explicitly (tests do).
func (r *RetrievalEngine) trackAccess(list []*RetrievalResult) {
	for _, res := range list {
		if res.isAntiPattern {
			continue
		}
		mem := res.Memory
		r.accessWG.Add(1)
		go func() {
			defer r.accessWG.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			updated, err := r.memoryStore.Get(ctx, mem.ID)
			if err != nil {
				return
			}
			updated.AccessCount++
			now := time.Now()
			updated.LastAccessedAt = &now
			updated.Importance = math.Min(1.0, updated.Importance+0.02)
			if err := r.memoryStore.Update(ctx, updated); err != nil {
				log.Printf("retrieval: access tracking failed for %s: %v", mem.ID, err)
			}
		}()
	}
}

// Close waits for any in-flight access-tracking goroutines to finish.
func (r *RetrievalEngine) Close() {
	r.accessWG.Wait()
}
