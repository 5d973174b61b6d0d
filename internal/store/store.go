// Package store provides SQLite-backed persistence for corpus chunks,
// personas, and conversation state.
package store

import (
	"context"

	"github.com/castmark/persona-engine/internal/model"
)

// PutChunkParams holds parameters for storing a corpus chunk.
type PutChunkParams struct {
	CharacterID string
	Text        string
	SourceRef   string
	SourceKind  string
	Tags        []string
}

// SearchParams holds parameters for lexical corpus search.
type SearchParams struct {
	CharacterID string
	Query       string
	Limit       int
}

// Store defines the persistence interface the engine depends on.
type Store interface {
	// PutChunk stores one corpus chunk, pre-embedding.
	PutChunk(ctx context.Context, p PutChunkParams) (*model.KnowledgeChunk, error)

	// GetAllChunks returns every chunk for a character, ordered by ID.
	GetAllChunks(ctx context.Context, characterID string) ([]model.KnowledgeChunk, error)

	// SetEmbedding attaches an embedding vector to a stored chunk.
	SetEmbedding(ctx context.Context, chunkID string, vec []float32) error

	// SavePersona upserts a persona profile.
	SavePersona(ctx context.Context, p model.Persona) error

	// GetPersona loads a persona by character ID.
	GetPersona(ctx context.Context, characterID string) (*model.Persona, error)

	// SaveSession persists full conversation state for recovery.
	SaveSession(ctx context.Context, st *model.ConversationState) error

	// LoadSession restores conversation state by session ID.
	LoadSession(ctx context.Context, sessionID string) (*model.ConversationState, error)

	// DeleteSession removes a session and its turns.
	DeleteSession(ctx context.Context, sessionID string) error

	// Close closes the store.
	Close() error
}
