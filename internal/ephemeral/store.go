// Package ephemeral implements the fast, TTL-bearing side of the memory
// engine's storage: active sessions, per-session working memory and
// conversation turns, pending signal queues, a hot read-through cache for
// recently retrieved memories, and a bounded event stream. None of it
// survives a process restart; the
// durable row/vector/graph stores (internal/storage) are the system of
// record for anything that must.
package ephemeral

import (
	"context"
	"sync"
	"time"

	"github.com/scrypster/memento/pkg/types"
)

// Store is the interface the engine depends on. The in-process
// implementation below is the only one shipped; a Redis-backed
// implementation would satisfy the same interface for multi-instance
// deployments, matching the teacher's storage-adapter-behind-an-interface
// pattern (internal/storage's Store interfaces).
type Store interface {
	// Sessions
	PutSession(ctx context.Context, s *types.Session, ttl time.Duration) error
	GetSession(ctx context.Context, id string) (*types.Session, bool)
	TouchSession(ctx context.Context, id string, ttl time.Duration) error
	EndSession(ctx context.Context, id string) (*types.Session, bool)
	ActiveSessionCount(ctx context.Context) int

	// Conversation turns (bounded ring buffer per session, used by the
	// signal detector's windowing)
	AppendTurn(ctx context.Context, sessionID, role, content string) error
	RecentTurns(ctx context.Context, sessionID string, n int) []Turn

	// Pending signals awaiting user/auto confirmation
	PutPendingSignal(ctx context.Context, id string, sig types.Signal, ttl time.Duration) error
	GetPendingSignal(ctx context.Context, id string) (types.Signal, bool)
	PopPendingSignal(ctx context.Context, id string) (types.Signal, bool)
	ListPendingSignals(ctx context.Context, sessionID string) []PendingSignal

	// Hot cache: serialized retrieval results keyed by a query hash, with
	// a per-entry TTL. This cache is query-result level, not embedding
	// level (internal/embedding keeps its own embedding cache).
	CacheRetrieval(ctx context.Context, queryHash string, result []byte, ttl time.Duration)
	GetCachedRetrieval(ctx context.Context, queryHash string) ([]byte, bool)

	// Model weight cache: the ML reranker/classifier publish their baked
	// weights here on (re)load so all goroutines observe a fresh set
	// without a restart.
	SetModelWeights(ctx context.Context, model string, weights []byte)
	GetModelWeights(ctx context.Context, model string) ([]byte, bool)

	// Event stream: bounded queue of ingest/domain events. Nothing in this
	// module reads Events.
	PublishEvent(ctx context.Context, evt Event) bool
	Events() <-chan Event

	// Close stops background sweeps and releases resources.
	Close()
}

// Turn is one conversational exchange recorded against a session.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// PendingSignal pairs a signal with the id it was stored under, for
// listing purposes.
type PendingSignal struct {
	ID     string       `json:"id"`
	Signal types.Signal `json:"signal"`
}

// Event is a single item on the bounded event stream (ingest, domain
// change, cache invalidation).
type Event struct {
	Kind      string    `json:"kind"`
	Payload   string    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	defaultEventBuffer = 256
	defaultTurnWindow  = 50
	sweepInterval      = 30 * time.Second
)

type sessionEntry struct {
	session   *types.Session
	turns     []Turn
	expiresAt time.Time
}

type pendingEntry struct {
	signal    types.Signal
	expiresAt time.Time
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// InProcess is an in-memory Store guarded by a single RWMutex. It is the ephemeral-store
// analogue of the teacher's enrichmentQueue/ContradictionDetector
// in-memory maps, generalized into a standalone package and given a
// periodic expiry sweep instead of being embedded directly in the engine.
type InProcess struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	pending  map[string]*pendingEntry
	cache    map[string]cacheEntry
	weights  map[string][]byte

	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup
}

// New creates an InProcess store and starts its background expiry sweep.
func New() *InProcess {
	s := &InProcess{
		sessions: make(map[string]*sessionEntry),
		pending:  make(map[string]*pendingEntry),
		cache:    make(map[string]cacheEntry),
		weights:  make(map[string][]byte),
		events:   make(chan Event, defaultEventBuffer),
		done:     make(chan struct{}),
	}
	s.wg.Add(1)
	go s.sweepLoop()
	return s
}

func (s *InProcess) sweepLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *InProcess) sweep() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.sessions {
		if e.session.EndedAt == nil && now.After(e.expiresAt) {
			delete(s.sessions, id)
		}
	}
	for id, e := range s.pending {
		if now.After(e.expiresAt) {
			delete(s.pending, id)
		}
	}
	for k, e := range s.cache {
		if now.After(e.expiresAt) {
			delete(s.cache, k)
		}
	}
}

func (s *InProcess) PutSession(_ context.Context, sess *types.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = &sessionEntry{session: sess, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *InProcess) GetSession(_ context.Context, id string) (*types.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

func (s *InProcess) TouchSession(_ context.Context, id string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil
	}
	e.expiresAt = time.Now().Add(ttl)
	return nil
}

func (s *InProcess) EndSession(_ context.Context, id string) (*types.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	now := time.Now()
	e.session.EndedAt = &now
	return e.session, true
}

func (s *InProcess) ActiveSessionCount(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.sessions {
		if e.session.EndedAt == nil {
			n++
		}
	}
	return n
}

func (s *InProcess) AppendTurn(_ context.Context, sessionID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	e.turns = append(e.turns, Turn{Role: role, Content: content, Timestamp: time.Now()})
	if len(e.turns) > defaultTurnWindow {
		e.turns = e.turns[len(e.turns)-defaultTurnWindow:]
	}
	return nil
}

func (s *InProcess) RecentTurns(_ context.Context, sessionID string, n int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	if n <= 0 || n > len(e.turns) {
		n = len(e.turns)
	}
	out := make([]Turn, n)
	copy(out, e.turns[len(e.turns)-n:])
	return out
}

func (s *InProcess) PutPendingSignal(_ context.Context, id string, sig types.Signal, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[id] = &pendingEntry{signal: sig, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *InProcess) GetPendingSignal(_ context.Context, id string) (types.Signal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.pending[id]
	if !ok {
		return types.Signal{}, false
	}
	return e.signal, true
}

func (s *InProcess) PopPendingSignal(_ context.Context, id string) (types.Signal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pending[id]
	if !ok {
		return types.Signal{}, false
	}
	delete(s.pending, id)
	return e.signal, true
}

func (s *InProcess) ListPendingSignals(_ context.Context, sessionID string) []PendingSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PendingSignal, 0, len(s.pending))
	for id, e := range s.pending {
		if e.signal.Source == sessionID || sessionID == "" {
			out = append(out, PendingSignal{ID: id, Signal: e.signal})
		}
	}
	return out
}

func (s *InProcess) CacheRetrieval(_ context.Context, queryHash string, result []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[queryHash] = cacheEntry{value: result, expiresAt: time.Now().Add(ttl)}
}

func (s *InProcess) GetCachedRetrieval(_ context.Context, queryHash string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.cache[queryHash]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (s *InProcess) SetModelWeights(_ context.Context, model string, weights []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weights[model] = weights
}

func (s *InProcess) GetModelWeights(_ context.Context, model string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.weights[model]
	return w, ok
}

// PublishEvent is a non-blocking send, matching queueEnrichmentJob's
// drop-on-full behavior: a slow event consumer must never stall ingest.
func (s *InProcess) PublishEvent(_ context.Context, evt Event) bool {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	select {
	case s.events <- evt:
		return true
	default:
		return false
	}
}

func (s *InProcess) Events() <-chan Event {
	return s.events
}

func (s *InProcess) Close() {
	close(s.done)
	s.wg.Wait()
}
