// Package retrieve ranks indexed knowledge chunks against a query.
package retrieve

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/castmark/persona-engine/internal/embedding"
	"github.com/castmark/persona-engine/internal/index"
	"github.com/castmark/persona-engine/internal/model"
)

// Weights configures the hybrid score combination.
type Weights struct {
	Dense   float64
	Lexical float64
}

// DefaultWeights favor dense similarity with a lexical backstop for
// exact facts (names, dates) that embeddings blur.
func DefaultWeights() Weights {
	return Weights{Dense: 0.7, Lexical: 0.3}
}

// Retriever scores snapshot chunks with a dense + lexical hybrid.
type Retriever struct {
	index    *index.Indexer
	embedder embedding.Embedder
	weights  Weights
	logger   *zap.Logger
}

// New creates a retriever. embedder may be nil for lexical-only scoring.
func New(idx *index.Indexer, embedder embedding.Embedder, weights Weights, logger *zap.Logger) *Retriever {
	if weights.Dense == 0 && weights.Lexical == 0 {
		weights = DefaultWeights()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{index: idx, embedder: embedder, weights: weights, logger: logger}
}

// Retrieve returns up to q.K chunks for q.CharacterID ranked by the
// hybrid score. An empty index for the character yields an empty result,
// not an error. Ordering is deterministic for a fixed query and index
// state: score, then source priority, then chunk ID descending (ULIDs
// order by creation time, so newer chunks win ties).
func (r *Retriever) Retrieve(ctx context.Context, q model.RetrievalQuery) ([]model.KnowledgeChunk, error) {
	candidates := r.index.Snapshot().Chunks(q.CharacterID)
	if len(candidates) == 0 {
		return nil, nil
	}

	k := q.K
	if k <= 0 {
		k = 5
	}

	var queryVec embedding.Vector
	if r.embedder != nil {
		vec, err := r.embedder.Embed(ctx, q.Text)
		if err != nil {
			// Dense scoring unavailable this call; lexical still works.
			r.logger.Warn("query embedding failed, lexical-only retrieval", zap.Error(err))
		} else {
			queryVec = vec
		}
	}
	queryTerms := terms(q.Text)

	type scored struct {
		chunk model.KnowledgeChunk
		score float64
	}
	results := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		var dense float64
		if queryVec != nil && len(c.Embedding) > 0 {
			dense = embedding.CosineSimilarity(queryVec, c.Embedding)
		}
		lexical := overlap(queryTerms, c.Text)
		score := r.weights.Dense*dense + r.weights.Lexical*lexical
		if score <= 0 {
			continue
		}
		results = append(results, scored{chunk: c, score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		pi := model.SourcePriority(results[i].chunk.SourceKind)
		pj := model.SourcePriority(results[j].chunk.SourceKind)
		if pi != pj {
			return pi > pj
		}
		return results[i].chunk.ID > results[j].chunk.ID
	})

	if len(results) > k {
		results = results[:k]
	}
	chunks := make([]model.KnowledgeChunk, len(results))
	for i, s := range results {
		chunks[i] = s.chunk
	}
	return chunks, nil
}

// terms lowercases and splits text into unique word terms, dropping
// one- and two-letter words.
func terms(text string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, `.,!?;:"'()[]`)
		if len(w) > 2 {
			set[w] = true
		}
	}
	return set
}

// overlap is the fraction of query terms present in the chunk text.
func overlap(queryTerms map[string]bool, chunkText string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	chunkTerms := terms(chunkText)
	matched := 0
	for t := range queryTerms {
		if chunkTerms[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}
