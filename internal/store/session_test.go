package store

import (
	"context"
	"testing"
	"time"

	"github.com/castmark/persona-engine/internal/model"
)

func TestSession_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	p := testPersona("harry")
	s.SavePersona(ctx, p)

	now := time.Now().UTC().Truncate(time.Second)
	st := &model.ConversationState{
		SessionID:      "sess-1",
		Persona:        p,
		RollingSummary: "They discussed Quidditch.",
		SummarizedUpTo: 2,
		Turns: []model.Turn{
			{Index: 0, Role: model.RoleUser, Text: "Do you fly?", Timestamp: now},
			{Index: 1, Role: model.RoleCharacter, Text: "Every chance I get.", Timestamp: now},
			{Index: 2, Role: model.RoleUser, Text: "Favorite position?", Timestamp: now},
		},
		RetrievedCache: map[int][]model.KnowledgeChunk{
			0: {{ID: "c1", CharacterID: "harry", Text: "Seeker since first year.", SourceRef: "book-1", SourceKind: "novel"}},
		},
		LastActiveAt: now,
	}

	if err := s.SaveSession(ctx, st); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.LoadSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.RollingSummary != st.RollingSummary {
		t.Errorf("summary: got %q, want %q", got.RollingSummary, st.RollingSummary)
	}
	if got.SummarizedUpTo != 2 {
		t.Errorf("summarized_up_to: got %d", got.SummarizedUpTo)
	}
	if len(got.Turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(got.Turns))
	}
	for i, turn := range got.Turns {
		if turn.Index != i {
			t.Errorf("turn %d has index %d", i, turn.Index)
		}
		if turn.Text != st.Turns[i].Text || turn.Role != st.Turns[i].Role {
			t.Errorf("turn %d mismatch: %+v", i, turn)
		}
	}
	if got.Persona.Name != p.Name {
		t.Errorf("persona not restored: %+v", got.Persona)
	}
	cached := got.RetrievedCache[0]
	if len(cached) != 1 || cached[0].Text != "Seeker since first year." {
		t.Errorf("retrieved cache not restored: %+v", got.RetrievedCache)
	}
}

func TestSession_SaveIsIdempotentForTurns(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	p := testPersona("harry")
	s.SavePersona(ctx, p)

	st := &model.ConversationState{
		SessionID:    "sess-2",
		Persona:      p,
		Turns:        []model.Turn{{Index: 0, Role: model.RoleUser, Text: "hi", Timestamp: time.Now()}},
		LastActiveAt: time.Now(),
	}
	s.SaveSession(ctx, st)

	st.Turns = append(st.Turns, model.Turn{Index: 1, Role: model.RoleCharacter, Text: "hello", Timestamp: time.Now()})
	s.SaveSession(ctx, st)
	s.SaveSession(ctx, st) // third save must not duplicate rows

	got, _ := s.LoadSession(ctx, "sess-2")
	if len(got.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(got.Turns))
	}
}

func TestSession_ListAndDelete(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	p := testPersona("harry")
	s.SavePersona(ctx, p)

	st := &model.ConversationState{
		SessionID:    "sess-3",
		Persona:      p,
		Turns:        []model.Turn{{Index: 0, Role: model.RoleUser, Text: "hi", Timestamp: time.Now()}},
		LastActiveAt: time.Now(),
	}
	s.SaveSession(ctx, st)

	infos, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 || infos[0].SessionID != "sess-3" || infos[0].Turns != 1 {
		t.Fatalf("unexpected sessions: %+v", infos)
	}

	if err := s.DeleteSession(ctx, "sess-3"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.LoadSession(ctx, "sess-3"); err == nil {
		t.Fatal("expected error after delete")
	}
}
