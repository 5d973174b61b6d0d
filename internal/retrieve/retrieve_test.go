package retrieve

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/castmark/persona-engine/internal/index"
	"github.com/castmark/persona-engine/internal/model"
	"github.com/castmark/persona-engine/internal/store"
)

// topicEmbedder projects text onto two fixed topic axes so cosine
// scores are predictable in tests.
type topicEmbedder struct{}

func (topicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	return []float32{
		float32(strings.Count(lower, "quidditch")),
		float32(strings.Count(lower, "potion")),
	}, nil
}

func (topicEmbedder) Dims() int { return 2 }

func fixture(t *testing.T) (*index.Indexer, context.Context) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	s.SavePersona(ctx, model.Persona{CharacterID: "harry", Name: "Harry"})
	s.SavePersona(ctx, model.Persona{CharacterID: "snape", Name: "Snape"})

	s.PutChunk(ctx, store.PutChunkParams{CharacterID: "harry",
		Text: "Harry plays quidditch as seeker for the house team.", SourceRef: "book-1", SourceKind: "novel"})
	s.PutChunk(ctx, store.PutChunkParams{CharacterID: "harry",
		Text: "He struggles with potion brewing in the dungeons.", SourceRef: "book-1", SourceKind: "novel"})
	s.PutChunk(ctx, store.PutChunkParams{CharacterID: "snape",
		Text: "Snape is a master of potion making and quidditch refereeing.", SourceRef: "book-1", SourceKind: "novel"})

	idx := index.New(s, topicEmbedder{}, nil)
	if _, err := idx.Build(ctx, "harry"); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.Build(ctx, "snape"); err != nil {
		t.Fatal(err)
	}
	return idx, ctx
}

func TestRetrieve_RanksByRelevance(t *testing.T) {
	idx, ctx := fixture(t)
	r := New(idx, topicEmbedder{}, DefaultWeights(), nil)

	got, err := r.Retrieve(ctx, model.RetrievalQuery{Text: "quidditch", CharacterID: "harry", K: 2})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected results")
	}
	if !strings.Contains(got[0].Text, "quidditch") {
		t.Errorf("expected quidditch chunk first, got %q", got[0].Text)
	}
}

func TestRetrieve_NeverCrossesCharacters(t *testing.T) {
	idx, ctx := fixture(t)
	r := New(idx, topicEmbedder{}, DefaultWeights(), nil)

	got, err := r.Retrieve(ctx, model.RetrievalQuery{Text: "potion quidditch", CharacterID: "harry", K: 10})
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range got {
		if c.CharacterID != "harry" {
			t.Errorf("cross-character leak: %+v", c)
		}
	}
}

func TestRetrieve_EmptyIndexIsNotAnError(t *testing.T) {
	idx, ctx := fixture(t)
	r := New(idx, topicEmbedder{}, DefaultWeights(), nil)

	got, err := r.Retrieve(ctx, model.RetrievalQuery{Text: "anything", CharacterID: "nobody", K: 5})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %d", len(got))
	}
}

func TestRetrieve_RespectsK(t *testing.T) {
	idx, ctx := fixture(t)
	r := New(idx, topicEmbedder{}, DefaultWeights(), nil)

	got, _ := r.Retrieve(ctx, model.RetrievalQuery{Text: "quidditch potion", CharacterID: "harry", K: 1})
	if len(got) > 1 {
		t.Errorf("expected at most 1 result, got %d", len(got))
	}
}

func TestRetrieve_Deterministic(t *testing.T) {
	idx, ctx := fixture(t)
	r := New(idx, topicEmbedder{}, DefaultWeights(), nil)
	q := model.RetrievalQuery{Text: "quidditch potion seeker", CharacterID: "harry", K: 5}

	first, err := r.Retrieve(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, err := r.Retrieve(ctx, q)
		if err != nil {
			t.Fatal(err)
		}
		if len(again) != len(first) {
			t.Fatalf("result length changed: %d vs %d", len(again), len(first))
		}
		for j := range again {
			if again[j].ID != first[j].ID {
				t.Fatalf("ordering changed at %d: %s vs %s", j, again[j].ID, first[j].ID)
			}
		}
	}
}

func TestRetrieve_LexicalOnlyWithoutEmbedder(t *testing.T) {
	idx, ctx := fixture(t)
	r := New(idx, nil, DefaultWeights(), nil)

	got, err := r.Retrieve(ctx, model.RetrievalQuery{Text: "seeker house team", CharacterID: "harry", K: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 {
		t.Fatal("expected lexical match without embedder")
	}
	if !strings.Contains(got[0].Text, "seeker") {
		t.Errorf("unexpected top result: %q", got[0].Text)
	}
}

func TestTerms(t *testing.T) {
	set := terms(`The Wand, chose "him"!`)
	if !set["wand"] || !set["chose"] || !set["him"] {
		t.Errorf("unexpected terms: %v", set)
	}
	if set["the"] {
		t.Error("short words should be dropped")
	}
}
