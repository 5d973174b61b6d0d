// Package index builds and serves the in-memory knowledge index over
// stored corpus chunks.
package index

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/castmark/persona-engine/internal/embedding"
	"github.com/castmark/persona-engine/internal/model"
	"github.com/castmark/persona-engine/internal/store"
)

// DefaultConcurrency bounds parallel embedding calls during a build.
const DefaultConcurrency = 4

// Snapshot is an immutable view of indexed chunks. Readers hold a
// snapshot for the duration of a retrieval; builds swap in a new one.
type Snapshot struct {
	byCharacter map[string][]model.KnowledgeChunk
}

// Chunks returns the indexed chunks for one character. The returned
// slice must not be mutated.
func (s *Snapshot) Chunks(characterID string) []model.KnowledgeChunk {
	if s == nil {
		return nil
	}
	return s.byCharacter[characterID]
}

// Indexer embeds corpus chunks and maintains the retrieval snapshot.
type Indexer struct {
	store       store.Store
	embedder    embedding.Embedder
	logger      *zap.Logger
	concurrency int

	mu       sync.Mutex // serializes builds; reads go through snapshot
	snapshot atomic.Pointer[Snapshot]
}

// New creates an indexer. embedder may be nil, in which case chunks are
// indexed without vectors and retrieval is lexical-only.
func New(st store.Store, embedder embedding.Embedder, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	idx := &Indexer{
		store:       st,
		embedder:    embedder,
		logger:      logger,
		concurrency: DefaultConcurrency,
	}
	idx.snapshot.Store(&Snapshot{byCharacter: map[string][]model.KnowledgeChunk{}})
	return idx
}

// Snapshot returns the current immutable index view.
func (x *Indexer) Snapshot() *Snapshot {
	return x.snapshot.Load()
}

// Build embeds all un-embedded chunks for a character and publishes a
// fresh snapshot. Chunks whose embedding fails are skipped and logged;
// a non-nil *model.IndexingError reports the skip count, but the build
// still publishes everything that succeeded.
func (x *Indexer) Build(ctx context.Context, characterID string) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	chunks, err := x.store.GetAllChunks(ctx, characterID)
	if err != nil {
		return 0, err
	}

	var skipMu sync.Mutex
	skipped := 0
	var firstErr error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.concurrency)

	for i := range chunks {
		if x.embedder == nil || len(chunks[i].Embedding) > 0 {
			continue
		}
		c := &chunks[i]
		g.Go(func() error {
			vec, err := x.embedder.Embed(gctx, c.Text)
			if err != nil {
				x.logger.Warn("skipping chunk, embedding failed",
					zap.String("chunk_id", c.ID),
					zap.String("character_id", characterID),
					zap.Error(err))
				skipMu.Lock()
				skipped++
				if firstErr == nil {
					firstErr = err
				}
				skipMu.Unlock()
				return nil // degrade, do not abort the build
			}
			if err := x.store.SetEmbedding(gctx, c.ID, vec); err != nil {
				return err
			}
			c.Embedding = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	x.publish(characterID, chunks)
	indexed := len(chunks) - skipped

	x.logger.Info("index built",
		zap.String("character_id", characterID),
		zap.Int("indexed", indexed),
		zap.Int("skipped", skipped))

	if skipped > 0 {
		return indexed, &model.IndexingError{CharacterID: characterID, Skipped: skipped, Err: firstErr}
	}
	return indexed, nil
}

// Upsert embeds one chunk and publishes a snapshot including it.
func (x *Indexer) Upsert(ctx context.Context, chunk model.KnowledgeChunk) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.embedder != nil && len(chunk.Embedding) == 0 {
		vec, err := x.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			return &model.IndexingError{CharacterID: chunk.CharacterID, Skipped: 1, Err: err}
		}
		if err := x.store.SetEmbedding(ctx, chunk.ID, vec); err != nil {
			return err
		}
		chunk.Embedding = vec
	}

	prev := x.snapshot.Load()
	existing := prev.Chunks(chunk.CharacterID)
	next := make([]model.KnowledgeChunk, 0, len(existing)+1)
	for _, c := range existing {
		if c.ID != chunk.ID {
			next = append(next, c)
		}
	}
	next = append(next, chunk)
	sort.Slice(next, func(i, j int) bool { return next[i].ID < next[j].ID })

	x.publish(chunk.CharacterID, next)
	return nil
}

// Rebuild re-embeds every chunk for a character from scratch.
func (x *Indexer) Rebuild(ctx context.Context, characterID string) (int, error) {
	x.mu.Lock()
	chunks, err := x.store.GetAllChunks(ctx, characterID)
	if err != nil {
		x.mu.Unlock()
		return 0, err
	}
	// Drop cached vectors so Build re-embeds everything.
	for i := range chunks {
		if err := x.store.SetEmbedding(ctx, chunks[i].ID, nil); err != nil {
			x.mu.Unlock()
			return 0, err
		}
	}
	x.mu.Unlock()

	return x.Build(ctx, characterID)
}

// publish swaps in a new snapshot with this character's chunks
// replaced. Other characters' entries carry over untouched.
func (x *Indexer) publish(characterID string, chunks []model.KnowledgeChunk) {
	prev := x.snapshot.Load()
	next := make(map[string][]model.KnowledgeChunk, len(prev.byCharacter)+1)
	for k, v := range prev.byCharacter {
		next[k] = v
	}
	next[characterID] = chunks
	x.snapshot.Store(&Snapshot{byCharacter: next})
}
