package types

import "time"

// SignalType enumerates the eight kinds of noteworthy content a signal
// can carry when extracted from a conversation turn window.
type SignalType string

const (
	SignalErrorFix     SignalType = "error_fix"
	SignalDecision     SignalType = "decision"
	SignalPattern      SignalType = "pattern"
	SignalPreference   SignalType = "preference"
	SignalFact         SignalType = "fact"
	SignalWorkflow     SignalType = "workflow"
	SignalContradiction SignalType = "contradiction"
	SignalWarning      SignalType = "warning"
)

// ValidSignalTypes lists the eight recognized signal types.
var ValidSignalTypes = []SignalType{
	SignalErrorFix, SignalDecision, SignalPattern, SignalPreference,
	SignalFact, SignalWorkflow, SignalContradiction, SignalWarning,
}

// IsValidSignalType reports whether t is one of the eight known types.
func IsValidSignalType(t SignalType) bool {
	for _, v := range ValidSignalTypes {
		if v == t {
			return true
		}
	}
	return false
}

// SignalTypeToMemoryType maps a detected signal type to the memory_type
// assigned on auto-store (SPEC_FULL.md §4.10.1).
var SignalTypeToMemoryType = map[SignalType]string{
	SignalErrorFix:      MemoryTypeEpisodic,
	SignalDecision:      MemoryTypeSemantic,
	SignalPattern:       MemoryTypeSemantic,
	SignalPreference:    MemoryTypeSemantic,
	SignalFact:          MemoryTypeSemantic,
	SignalWorkflow:      MemoryTypeProcedural,
	SignalContradiction: MemoryTypeEpisodic,
	SignalWarning:       MemoryTypeSemantic,
}

// SignalTypeDefaultImportance provides the fallback importance used when
// the LLM extraction doesn't supply one.
var SignalTypeDefaultImportance = map[SignalType]float64{
	SignalErrorFix:      0.7,
	SignalDecision:      0.8,
	SignalPattern:       0.75,
	SignalPreference:    0.6,
	SignalFact:          0.5,
	SignalWorkflow:      0.65,
	SignalContradiction: 0.8,
	SignalWarning:       0.85,
}

// Signal is the parsed output of one LLM-extraction hit before routing
// (auto-store / pending / discard) by confidence.
type Signal struct {
	SignalType         SignalType `json:"signal_type"`
	Content            string     `json:"content"`
	Confidence         float64    `json:"confidence"`
	SuggestedDomain    string     `json:"suggested_domain,omitempty"`
	SuggestedTags      []string   `json:"suggested_tags,omitempty"`
	SuggestedImportance float64   `json:"suggested_importance,omitempty"`
	SuggestedDurability Durability `json:"suggested_durability,omitempty"`
	Source             string     `json:"source,omitempty"`
}

// Session tracks one conversational working context. It lives in the
// ephemeral store (internal/ephemeral); ending it there only stamps
// EndedAt, and no code copies it into the durable row store's
// session_archive table.
type Session struct {
	ID                string     `json:"id"`
	StartedAt         time.Time  `json:"started_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	WorkingDirectory  string     `json:"working_directory,omitempty"`
	CurrentTask       string     `json:"current_task,omitempty"`
	WorkingMemory     []string   `json:"working_memory,omitempty"` // memory ids, newest-first
	TopicsDiscussed   []string   `json:"topics_discussed,omitempty"`
	MemoriesCreated   int        `json:"memories_created"`
	MemoriesRetrieved int        `json:"memories_retrieved"`
	SignalsDetected   int        `json:"signals_detected"`
}

// User is an API principal, authenticated by API key.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	APIKey       string    `json:"api_key"`
	DisplayName  string    `json:"display_name,omitempty"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Document describes an ingested file whose children are ordinary
// memories. No code in this module creates Document values or
// extracted_from graph edges; internal/importer stores imported notes as
// plain memories.
type Document struct {
	ID          string     `json:"id"`
	Filename    string     `json:"filename"`
	FileHash    string     `json:"file_hash"`
	FileType    string     `json:"file_type"`
	Domain      string     `json:"domain"`
	Durability  Durability `json:"durability,omitempty"`
	Pinned      bool       `json:"pinned"`
	MemoryCount int        `json:"memory_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UserID      string     `json:"user_id,omitempty"`
}
