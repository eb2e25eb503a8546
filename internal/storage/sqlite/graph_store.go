package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/scrypster/memento/internal/storage"
	"github.com/scrypster/memento/pkg/types"
)

// Ensure *MemoryStore implements the new graph/fact/anti-pattern/audit
// capability interfaces at compile time.
var (
	_ storage.GraphStore       = (*MemoryStore)(nil)
	_ storage.FactStore        = (*MemoryStore)(nil)
	_ storage.AntiPatternStore = (*MemoryStore)(nil)
	_ storage.AuditStore       = (*MemoryStore)(nil)
	_ storage.EmbeddingScanner = (*MemoryStore)(nil)
)

func newLinkID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return "link:" + hex.EncodeToString(b[:])
}

// CreateTypedLink creates a weighted edge between two memories, a no-op if
// the (source, target, type) triple already exists.
func (s *MemoryStore) CreateTypedLink(ctx context.Context, sourceID, targetID, linkType string, weight float64) error {
	if sourceID == "" || targetID == "" || linkType == "" {
		return fmt.Errorf("%w: source, target and link type are required", storage.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_links (id, source_id, target_id, type, weight) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(source_id, target_id, type) DO UPDATE SET weight = excluded.weight, updated_at = CURRENT_TIMESTAMP`,
		newLinkID(), sourceID, targetID, linkType, weight,
	)
	if err != nil {
		return fmt.Errorf("sqlite: CreateTypedLink: %w", err)
	}
	return nil
}

// StrengthenLink increments an edge's weight (creating it if absent) and
// returns the resulting weight, clamped to [0, 1].
func (s *MemoryStore) StrengthenLink(ctx context.Context, sourceID, targetID, linkType string, increment float64) (float64, error) {
	if sourceID == "" || targetID == "" || linkType == "" {
		return 0, fmt.Errorf("%w: source, target and link type are required", storage.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: StrengthenLink begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current float64
	err = tx.QueryRowContext(ctx,
		`SELECT weight FROM memory_links WHERE source_id = ? AND target_id = ? AND type = ?`,
		sourceID, targetID, linkType,
	).Scan(&current)
	if err != nil {
		current = 0
	}

	newWeight := current + increment
	if newWeight > 1 {
		newWeight = 1
	}
	if newWeight < 0 {
		newWeight = 0
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO memory_links (id, source_id, target_id, type, weight) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(source_id, target_id, type) DO UPDATE SET weight = excluded.weight, updated_at = CURRENT_TIMESTAMP`,
		newLinkID(), sourceID, targetID, linkType, newWeight,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: StrengthenLink upsert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: StrengthenLink commit: %w", err)
	}
	return newWeight, nil
}

func scanLinks(rows *sql.Rows) ([]storage.MemoryLink, error) {
	var links []storage.MemoryLink
	for rows.Next() {
		var l storage.MemoryLink
		if err := rows.Scan(&l.ID, &l.SourceID, &l.TargetID, &l.Type, &l.Weight); err != nil {
			return nil, fmt.Errorf("sqlite: scan memory_link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return links, nil
}

// LinksFrom returns outgoing edges from memoryID, optionally filtered by type.
func (s *MemoryStore) LinksFrom(ctx context.Context, memoryID string, linkType string) ([]storage.MemoryLink, error) {
	var rows *sql.Rows
	var err error
	if linkType == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT id, source_id, target_id, type, weight FROM memory_links WHERE source_id = ?`, memoryID)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT id, source_id, target_id, type, weight FROM memory_links WHERE source_id = ? AND type = ?`, memoryID, linkType)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: LinksFrom: %w", err)
	}
	defer rows.Close()
	return scanLinks(rows)
}

// LinksTo returns incoming edges to memoryID, optionally filtered by type.
func (s *MemoryStore) LinksTo(ctx context.Context, memoryID string, linkType string) ([]storage.MemoryLink, error) {
	var rows *sql.Rows
	var err error
	if linkType == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT id, source_id, target_id, type, weight FROM memory_links WHERE target_id = ?`, memoryID)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT id, source_id, target_id, type, weight FROM memory_links WHERE target_id = ? AND type = ?`, memoryID, linkType)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: LinksTo: %w", err)
	}
	defer rows.Close()
	return scanLinks(rows)
}

// BulkIncidentWeight sums incoming and outgoing edge weight per memory id
// in a single pair of queries, for the decay worker's graph floor.
func (s *MemoryStore) BulkIncidentWeight(ctx context.Context, memoryIDs []string) (map[string]float64, error) {
	totals := make(map[string]float64, len(memoryIDs))
	if len(memoryIDs) == 0 {
		return totals, nil
	}

	placeholders, args := inClause(memoryIDs)

	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, SUM(weight) FROM memory_links WHERE source_id IN (`+placeholders+`) GROUP BY source_id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: BulkIncidentWeight outgoing: %w", err)
	}
	for rows.Next() {
		var id string
		var w float64
		if err := rows.Scan(&id, &w); err == nil {
			totals[id] += w
		}
	}
	rows.Close()

	rows, err = s.db.QueryContext(ctx,
		`SELECT target_id, SUM(weight) FROM memory_links WHERE target_id IN (`+placeholders+`) GROUP BY target_id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: BulkIncidentWeight incoming: %w", err)
	}
	for rows.Next() {
		var id string
		var w float64
		if err := rows.Scan(&id, &w); err == nil {
			totals[id] += w
		}
	}
	rows.Close()

	return totals, rows.Err()
}

// ContradictingPairs returns (source, target) pairs linked by a
// "contradicts" edge where both ends belong to memoryIDs.
func (s *MemoryStore) ContradictingPairs(ctx context.Context, memoryIDs []string) ([][2]string, error) {
	if len(memoryIDs) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(memoryIDs)
	args = append(args, args...) // used twice in the query below

	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, target_id FROM memory_links
		 WHERE type = 'contradicts' AND source_id IN (`+placeholders+`) AND target_id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: ContradictingPairs: %w", err)
	}
	defer rows.Close()

	var pairs [][2]string
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return nil, err
		}
		pairs = append(pairs, [2]string{a, b})
	}
	return pairs, rows.Err()
}

func inClause(ids []string) (string, []interface{}) {
	placeholders := ""
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = id
	}
	return placeholders, args
}

// StoreFact persists an atomic fact sub-embedding of a parent memory.
func (s *MemoryStore) StoreFact(ctx context.Context, fact types.Fact, embedding []float64) error {
	if fact.ID == "" || fact.ParentID == "" {
		return fmt.Errorf("%w: fact id and parent id are required", storage.ErrInvalidInput)
	}
	blob, err := serializeEmbedding(embedding)
	if err != nil {
		return fmt.Errorf("sqlite: StoreFact serialize: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO facts (id, parent_id, fact_index, content, domain, embedding, dimension)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET content = excluded.content, domain = excluded.domain,
		   embedding = excluded.embedding, dimension = excluded.dimension`,
		fact.ID, fact.ParentID, fact.FactIndex, fact.Content, fact.Domain, blob, len(embedding),
	)
	if err != nil {
		return fmt.Errorf("sqlite: StoreFact: %w", err)
	}
	return nil
}

// SearchFacts ranks stored facts by cosine similarity to query, descending.
func (s *MemoryStore) SearchFacts(ctx context.Context, query []float64, limit int) ([]storage.FactHit, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, parent_id, fact_index, content, domain, embedding, dimension FROM facts`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: SearchFacts: %w", err)
	}
	defer rows.Close()

	var hits []storage.FactHit
	for rows.Next() {
		var f types.Fact
		var domain sql.NullString
		var blob []byte
		var dim int
		if err := rows.Scan(&f.ID, &f.ParentID, &f.FactIndex, &f.Content, &domain, &blob, &dim); err != nil {
			continue
		}
		f.Domain = domain.String
		vec, err := deserializeEmbedding(blob, dim)
		if err != nil {
			continue
		}
		sim := cosineSimilarity(query, vec)
		hits = append(hits, storage.FactHit{Fact: f, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortHitsByScore(hits, func(i int) float64 { return hits[i].Similarity })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// sortHitsByScore sorts hits in place, descending by score(i). Small helper
// to avoid pulling in a generic sort dependency for two tiny call sites.
func sortHitsByScore(hits []storage.FactHit, score func(i int) float64) {
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && score(j) > score(j-1); j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
}

// StoreAntiPattern persists a warning memory in the anti-pattern
// sub-collection.
func (s *MemoryStore) StoreAntiPattern(ctx context.Context, ap types.AntiPattern, embedding []float64) error {
	if ap.ID == "" {
		return fmt.Errorf("%w: anti-pattern id is required", storage.ErrInvalidInput)
	}
	blob, err := serializeEmbedding(embedding)
	if err != nil {
		return fmt.Errorf("sqlite: StoreAntiPattern serialize: %w", err)
	}
	tagsJSON, err := json.Marshal(ap.Tags)
	if err != nil {
		return fmt.Errorf("sqlite: StoreAntiPattern marshal tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO anti_patterns (id, pattern, warning, alternative, severity, domain, tags, times_triggered, embedding, dimension)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET pattern = excluded.pattern, warning = excluded.warning,
		   alternative = excluded.alternative, severity = excluded.severity, domain = excluded.domain,
		   tags = excluded.tags, embedding = excluded.embedding, dimension = excluded.dimension,
		   updated_at = CURRENT_TIMESTAMP`,
		ap.ID, ap.Pattern, ap.Warning, ap.Alternative, string(ap.Severity), ap.Domain, string(tagsJSON), ap.TimesTriggered, blob, len(embedding),
	)
	if err != nil {
		return fmt.Errorf("sqlite: StoreAntiPattern: %w", err)
	}
	return nil
}

// SearchAntiPatterns ranks anti-patterns by cosine similarity to query,
// restricted to domain (when non-empty) and the minSimilarity floor.
func (s *MemoryStore) SearchAntiPatterns(ctx context.Context, query []float64, domain string, limit int, minSimilarity float64) ([]storage.AntiPatternHit, error) {
	if limit <= 0 {
		limit = 3
	}

	sqlStr := `SELECT id, pattern, warning, alternative, severity, domain, tags, times_triggered, embedding, dimension FROM anti_patterns`
	var args []interface{}
	if domain != "" {
		sqlStr += ` WHERE domain = ?`
		args = append(args, domain)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: SearchAntiPatterns: %w", err)
	}
	defer rows.Close()

	var hits []storage.AntiPatternHit
	for rows.Next() {
		var ap types.AntiPattern
		var severity string
		var alternative, domainVal, tagsJSON sql.NullString
		var blob []byte
		var dim int
		if err := rows.Scan(&ap.ID, &ap.Pattern, &ap.Warning, &alternative, &severity, &domainVal, &tagsJSON, &ap.TimesTriggered, &blob, &dim); err != nil {
			continue
		}
		ap.Alternative = alternative.String
		ap.Domain = domainVal.String
		ap.Severity = types.AntiPatternSeverity(severity)
		if tagsJSON.Valid && tagsJSON.String != "" {
			_ = json.Unmarshal([]byte(tagsJSON.String), &ap.Tags)
		}
		vec, err := deserializeEmbedding(blob, dim)
		if err != nil {
			continue
		}
		sim := cosineSimilarity(query, vec)
		if sim < minSimilarity {
			continue
		}
		hits = append(hits, storage.AntiPatternHit{AntiPattern: ap, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].Similarity > hits[j-1].Similarity; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// IncrementAntiPatternTriggered bumps times_triggered by one, best-effort.
func (s *MemoryStore) IncrementAntiPatternTriggered(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE anti_patterns SET times_triggered = times_triggered + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: IncrementAntiPatternTriggered: %w", err)
	}
	return nil
}

// WriteAudit appends one row to the audit log.
func (s *MemoryStore) WriteAudit(ctx context.Context, entry storage.AuditEntry) error {
	detailsJSON, err := json.Marshal(entry.Details)
	if err != nil {
		detailsJSON = []byte("{}")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, action, memory_id, actor, details_json, session_id, user_id) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		newLinkID(), entry.Action, entry.MemoryID, entry.Actor, string(detailsJSON), entry.SessionID, entry.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: WriteAudit: %w", err)
	}
	return nil
}

// FeedbackRollups aggregates useful/not_useful feedback audit rows per
// memory id for the decay worker's feedback_mod term.
func (s *MemoryStore) FeedbackRollups(ctx context.Context, memoryIDs []string) (map[string]storage.FeedbackRollup, error) {
	rollups := make(map[string]storage.FeedbackRollup, len(memoryIDs))
	if len(memoryIDs) == 0 {
		return rollups, nil
	}
	placeholders, args := inClause(memoryIDs)
	rows, err := s.db.QueryContext(ctx,
		`SELECT memory_id, details_json FROM audit_log WHERE action = 'feedback' AND memory_id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: FeedbackRollups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var memID string
		var detailsJSON sql.NullString
		if err := rows.Scan(&memID, &detailsJSON); err != nil {
			continue
		}
		if !detailsJSON.Valid {
			continue
		}
		var details struct {
			Verdict string `json:"verdict"`
		}
		if err := json.Unmarshal([]byte(detailsJSON.String), &details); err != nil {
			continue
		}
		r := rollups[memID]
		switch details.Verdict {
		case "useful":
			r.UsefulCount++
		case "not_useful":
			r.NotUsefulCount++
		}
		rollups[memID] = r
	}
	return rollups, rows.Err()
}

// AllEmbeddings loads every stored memory embedding (most-recent-first,
// capped at limit) for the consolidation worker's clustering pass.
func (s *MemoryStore) AllEmbeddings(ctx context.Context, limit int) (map[string][]float64, error) {
	if limit <= 0 {
		limit = vectorSearchMaxCandidates
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.memory_id, e.embedding, e.dimension
		 FROM embeddings e
		 JOIN memories m ON m.id = e.memory_id
		 WHERE m.deleted_at IS NULL
		 ORDER BY m.created_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: AllEmbeddings: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]float64)
	for rows.Next() {
		var memID string
		var blob []byte
		var dim int
		if err := rows.Scan(&memID, &blob, &dim); err != nil {
			continue
		}
		vec, err := deserializeEmbedding(blob, dim)
		if err != nil {
			continue
		}
		out[memID] = vec
	}
	return out, rows.Err()
}
