package model

import "fmt"

// CorpusError reports malformed or empty corpus input. Fatal to that
// item only.
type CorpusError struct {
	SourceRef string
	Reason    string
}

func (e *CorpusError) Error() string {
	if e.SourceRef == "" {
		return "corpus: " + e.Reason
	}
	return fmt.Sprintf("corpus %s: %s", e.SourceRef, e.Reason)
}

// IndexingError reports chunks skipped during an index build. The build
// itself succeeds for the remaining chunks.
type IndexingError struct {
	CharacterID string
	Skipped     int
	Err         error
}

func (e *IndexingError) Error() string {
	return fmt.Sprintf("indexing %s: %d chunks skipped: %v", e.CharacterID, e.Skipped, e.Err)
}

func (e *IndexingError) Unwrap() error { return e.Err }

// InvalidTurnError reports an out-of-order turn append. A caller bug,
// surfaced immediately.
type InvalidTurnError struct {
	SessionID string
	Got       int
	Want      int
}

func (e *InvalidTurnError) Error() string {
	return fmt.Sprintf("session %s: turn index %d, want %d", e.SessionID, e.Got, e.Want)
}

// BudgetExceededError means even the minimal preamble plus user message
// cannot fit the token budget. A configuration error, never retried.
type BudgetExceededError struct {
	Budget int
	Needed int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("prompt budget %d tokens, minimal prompt needs %d", e.Budget, e.Needed)
}

// GenerationError wraps a failed generation backend call.
type GenerationError struct {
	Provider  string
	Transient bool
	Err       error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation (%s): %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// EmbeddingError wraps a failed embedding backend call. Per-chunk and
// recoverable; the indexer skips the chunk.
type EmbeddingError struct {
	Provider string
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding (%s): %v", e.Provider, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// ConsistencyViolation reports generated text that failed persona
// validation. Triggers bounded regeneration before the fallback reply.
type ConsistencyViolation struct {
	Rule   string
	Detail string
}

func (e *ConsistencyViolation) Error() string {
	return fmt.Sprintf("consistency: %s (%s)", e.Rule, e.Detail)
}
