// Package model defines the core persona-engine data types.
package model

import "time"

// KnowledgeChunk is an indexed unit of character source text.
// Immutable once indexed; replaced only by a full reindex.
type KnowledgeChunk struct {
	ID          string    `json:"id"`
	CharacterID string    `json:"character_id"`
	Text        string    `json:"text"`
	SourceRef   string    `json:"source_ref"`
	SourceKind  string    `json:"source_kind"`
	Tags        []string  `json:"tags,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Persona is the fixed character profile constraining tone and facts.
// Loaded once per character, immutable during a conversation.
type Persona struct {
	CharacterID     string   `json:"character_id" yaml:"character_id"`
	Name            string   `json:"name" yaml:"name"`
	VoiceTraits     []string `json:"voice_traits" yaml:"voice_traits"`
	HardConstraints []string `json:"hard_constraints" yaml:"hard_constraints"`
	ForbiddenTopics []string `json:"forbidden_topics" yaml:"forbidden_topics"`
	Greeting        string   `json:"greeting,omitempty" yaml:"greeting"`
	Fallback        string   `json:"fallback,omitempty" yaml:"fallback"`
}

// Turn roles.
const (
	RoleUser      = "user"
	RoleCharacter = "character"
)

// Turn is one utterance in a conversation. Append-only; Index ordering
// is the single source of truth for conversation order.
type Turn struct {
	Index     int       `json:"index"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationState is the full per-session state. Owned exclusively by
// the session manager; mutated only through AppendTurn and ApplySummary.
type ConversationState struct {
	SessionID      string                   `json:"session_id"`
	Persona        Persona                  `json:"persona"`
	Turns          []Turn                   `json:"turns"`
	RollingSummary string                   `json:"rolling_summary,omitempty"`
	SummarizedUpTo int                      `json:"summarized_up_to"`
	RetrievedCache map[int][]KnowledgeChunk `json:"retrieved_cache,omitempty"`
	LastActiveAt   time.Time                `json:"last_active_at"`
}

// RetrievalQuery is an ephemeral retrieval request.
type RetrievalQuery struct {
	Text        string
	CharacterID string
	K           int
}

// GenerationRequest is the assembled, budget-bounded prompt handed to a
// generation backend. Snippets and turns keep the assembler's ordering.
type GenerationRequest struct {
	SystemPreamble    string   `json:"system_preamble"`
	KnowledgeSnippets []string `json:"knowledge_snippets,omitempty"`
	HistorySnippet    string   `json:"history_snippet,omitempty"`
	UserMessage       string   `json:"user_message"`
	MaxTokensBudget   int      `json:"max_tokens_budget"`
}

// ValidSourceKinds are the allowed corpus source kinds.
var ValidSourceKinds = map[string]bool{
	"novel":    true,
	"dialogue": true,
	"profile":  true,
	"wiki":     true,
}

// SourcePriority ranks source kinds for deterministic retrieval
// tie-breaks. Higher wins; profiles carry hand-curated facts.
func SourcePriority(kind string) int {
	switch kind {
	case "profile":
		return 4
	case "dialogue":
		return 3
	case "wiki":
		return 2
	case "novel":
		return 1
	default:
		return 0
	}
}
