// Package embedding wraps an LLM embedding backend with instruction
// prefixing and a bounded, short-TTL cache, per SPEC_FULL.md §4.1.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/scrypster/memento/internal/llm"
)

// Prefix selects the instruction template prepended before embedding.
// A Query prefix improves retrieval-query embeddings for asymmetric
// embedding models; a Passage prefix is used for stored content.
type Prefix string

const (
	Passage Prefix = "passage"
	Query   Prefix = "query"
)

// queryInstruction is prepended to text embedded with the Query prefix.
// Passage text is embedded as-is.
const queryInstruction = "Represent this query for retrieving relevant passages: "

// ErrUnavailable marks a failed embedding call. Embed wraps every error
// returned by the backend client, and a nil client, in ErrUnavailable; it
// does not distinguish an unreachable backend from a retriable per-call
// error.
var ErrUnavailable = errors.New("embedding: service unreachable")

const (
	cacheSize = 200
	cacheTTL  = 300 * time.Second
)

type cacheEntry struct {
	vector    []float64
	expiresAt time.Time
}

// Wrapper caches embedding calls against an underlying llm.EmbeddingGenerator.
type Wrapper struct {
	client llm.EmbeddingGenerator
	dim    int

	mu    sync.Mutex
	cache *lru.Cache[string, cacheEntry]
}

// New creates an embedding wrapper around client. dim is the configured
// output dimensionality (used only to validate returned vectors; 0 skips
// the check).
func New(client llm.EmbeddingGenerator, dim int) *Wrapper {
	cache, _ := lru.New[string, cacheEntry](cacheSize)
	return &Wrapper{client: client, dim: dim, cache: cache}
}

func cacheKey(prefix Prefix, text string) string {
	h := sha256.Sum256([]byte(string(prefix) + "\x00" + text))
	return hex.EncodeToString(h[:])
}

// Embed returns the embedding for text under the given instruction prefix,
// serving from cache when possible.
func (w *Wrapper) Embed(ctx context.Context, text string, prefix Prefix) ([]float64, error) {
	if w.client == nil {
		return nil, ErrUnavailable
	}

	key := cacheKey(prefix, text)

	w.mu.Lock()
	if entry, ok := w.cache.Get(key); ok {
		if time.Now().Before(entry.expiresAt) {
			w.mu.Unlock()
			return entry.vector, nil
		}
		w.cache.Remove(key)
	}
	w.mu.Unlock()

	input := text
	if prefix == Query {
		input = queryInstruction + text
	}

	vec32, err := w.client.Embed(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if w.dim > 0 && len(vec32) != w.dim {
		return nil, fmt.Errorf("embedding: expected dimension %d, got %d", w.dim, len(vec32))
	}

	vec64 := make([]float64, len(vec32))
	for i, v := range vec32 {
		vec64[i] = float64(v)
	}

	w.mu.Lock()
	w.cache.Add(key, cacheEntry{vector: vec64, expiresAt: time.Now().Add(cacheTTL)})
	w.mu.Unlock()

	return vec64, nil
}

// EmbedBatch embeds each text under the given prefix. It currently always
// falls back to sequential per-item calls (the teacher's embedding client
// has no native batch endpoint); a failure on one item does not abort the
// rest, matching the "partial results remain possible" contract.
func (w *Wrapper) EmbedBatch(ctx context.Context, texts []string, prefix Prefix) ([][]float64, []error) {
	vectors := make([][]float64, len(texts))
	errs := make([]error, len(texts))
	for i, t := range texts {
		vectors[i], errs[i] = w.Embed(ctx, t, prefix)
	}
	return vectors, errs
}

// Dimension returns the configured embedding dimensionality.
func (w *Wrapper) Dimension() int {
	return w.dim
}
