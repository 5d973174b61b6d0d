package prompt

import (
	"errors"
	"strings"
	"testing"

	"github.com/castmark/persona-engine/internal/model"
	"github.com/castmark/persona-engine/internal/session"
)

func assemblePersona() model.Persona {
	return model.Persona{
		CharacterID:     "harry",
		Name:            "Harry",
		VoiceTraits:     []string{"earnest", "a little sarcastic"},
		HardConstraints: []string{"house=Gryffindor"},
		ForbiddenTopics: []string{"spoilers"},
	}
}

func chunk(id, text string) model.KnowledgeChunk {
	return model.KnowledgeChunk{ID: id, CharacterID: "harry", Text: text, SourceKind: "novel"}
}

func TestAssemble_AllFits(t *testing.T) {
	p := assemblePersona()
	retrieved := []model.KnowledgeChunk{chunk("c1", "Seeker since first year.")}
	window := session.Window{
		Summary: "They talked about school.",
		Turns: []model.Turn{
			{Index: 0, Role: model.RoleUser, Text: "Hi!"},
			{Index: 1, Role: model.RoleCharacter, Text: "Hello."},
		},
	}

	req, err := Assemble(p, retrieved, window, "What house are you in?", 2048)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if !strings.Contains(req.SystemPreamble, "You are Harry") {
		t.Errorf("preamble missing persona: %q", req.SystemPreamble)
	}
	if !strings.Contains(req.SystemPreamble, "house=Gryffindor") {
		t.Error("preamble missing hard constraint")
	}
	if len(req.KnowledgeSnippets) != 1 {
		t.Errorf("expected 1 snippet, got %d", len(req.KnowledgeSnippets))
	}
	if !strings.Contains(req.HistorySnippet, "Earlier in this conversation: They talked about school.") {
		t.Errorf("history missing summary: %q", req.HistorySnippet)
	}
	if !strings.Contains(req.HistorySnippet, "User: Hi!") || !strings.Contains(req.HistorySnippet, "Harry: Hello.") {
		t.Errorf("history missing turns: %q", req.HistorySnippet)
	}
	if req.UserMessage != "What house are you in?" {
		t.Errorf("user message altered: %q", req.UserMessage)
	}
	if Size(req) > 2048 {
		t.Errorf("request exceeds budget: %d", Size(req))
	}
}

func TestAssemble_Deterministic(t *testing.T) {
	p := assemblePersona()
	retrieved := []model.KnowledgeChunk{chunk("c1", "alpha"), chunk("c2", "beta")}
	window := session.Window{Turns: []model.Turn{{Index: 0, Role: model.RoleUser, Text: "hi"}}}

	first, err := Assemble(p, retrieved, window, "question", 2048)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := Assemble(p, retrieved, window, "question", 2048)
		if err != nil {
			t.Fatal(err)
		}
		if RenderFlat(again) != RenderFlat(first) {
			t.Fatal("identical inputs produced different output")
		}
	}
}

func TestAssemble_BudgetLawHolds(t *testing.T) {
	p := assemblePersona()
	long := strings.Repeat("lumos maxima ", 30)
	retrieved := []model.KnowledgeChunk{chunk("c1", long), chunk("c2", long), chunk("c3", long)}
	window := session.Window{
		Summary: long,
		Turns: []model.Turn{
			{Index: 0, Role: model.RoleUser, Text: long},
			{Index: 1, Role: model.RoleCharacter, Text: long},
			{Index: 2, Role: model.RoleUser, Text: long},
		},
	}

	for _, budget := range []int{200, 300, 500, 800, 1200} {
		req, err := Assemble(p, retrieved, window, "short question", budget)
		if err != nil {
			t.Fatalf("budget %d: %v", budget, err)
		}
		if got := Size(req); got > budget {
			t.Errorf("budget %d: assembled %d tokens", budget, got)
		}
	}
}

func TestAssemble_TrimsOldestTurnsFirst(t *testing.T) {
	p := assemblePersona()
	long := strings.Repeat("expecto patronum ", 25) // ~106 tokens each
	window := session.Window{Turns: []model.Turn{
		{Index: 0, Role: model.RoleUser, Text: "OLDEST " + long},
		{Index: 1, Role: model.RoleCharacter, Text: "MIDDLE " + long},
		{Index: 2, Role: model.RoleUser, Text: "NEWEST " + long},
	}}
	snippet := chunk("c1", "the snippet fact")

	// Budget fits preamble + user + snippet + two turns, not three.
	budget := model.EstimateTokens(Preamble(p, false)) +
		model.EstimateTokens("q") +
		model.EstimateTokens(snippet.Text) +
		2*model.EstimateTokens("MIDDLE "+long) + 20

	req, err := Assemble(p, []model.KnowledgeChunk{snippet}, window, "q", budget)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(req.HistorySnippet, "OLDEST") {
		t.Error("oldest turn should be trimmed first")
	}
	if !strings.Contains(req.HistorySnippet, "NEWEST") {
		t.Error("newest turn must survive")
	}
	// Snippets are only dropped after all turns.
	if len(req.KnowledgeSnippets) != 1 {
		t.Errorf("snippet dropped before turns: %v", req.KnowledgeSnippets)
	}
}

func TestAssemble_DropsSnippetsLowestRankFirst(t *testing.T) {
	p := assemblePersona()
	long := strings.Repeat("felix felicis ", 30)
	retrieved := []model.KnowledgeChunk{chunk("top", "TOP "+long), chunk("low", "LOW "+long)}

	budget := model.EstimateTokens(Preamble(p, false)) +
		model.EstimateTokens("q") +
		model.EstimateTokens("TOP "+long) + 5

	req, err := Assemble(p, retrieved, session.Window{}, "q", budget)
	if err != nil {
		t.Fatal(err)
	}
	if len(req.KnowledgeSnippets) != 1 || !strings.HasPrefix(req.KnowledgeSnippets[0], "TOP") {
		t.Errorf("expected only top-ranked snippet, got %v", req.KnowledgeSnippets)
	}
}

func TestAssemble_PreambleAndMessageAlwaysSurvive(t *testing.T) {
	p := assemblePersona()
	long := strings.Repeat("accio ", 100)
	retrieved := []model.KnowledgeChunk{chunk("c1", long)}
	window := session.Window{Summary: long, Turns: []model.Turn{{Index: 0, Role: model.RoleUser, Text: long}}}

	budget := model.EstimateTokens(Preamble(p, false)) + model.EstimateTokens("just this") + 1
	req, err := Assemble(p, retrieved, window, "just this", budget)
	if err != nil {
		t.Fatalf("assemble at minimal budget: %v", err)
	}
	if req.SystemPreamble == "" || req.UserMessage != "just this" {
		t.Errorf("mandatory parts missing: %+v", req)
	}
	if len(req.KnowledgeSnippets) != 0 || req.HistorySnippet != "" {
		t.Errorf("expected everything optional trimmed: %+v", req)
	}
}

func TestAssemble_ImpossibleBudget(t *testing.T) {
	p := assemblePersona()
	_, err := Assemble(p, nil, session.Window{}, "hello there", 5)
	var berr *model.BudgetExceededError
	if !errors.As(err, &berr) {
		t.Fatalf("expected BudgetExceededError, got %v", err)
	}
	if berr.Budget != 5 || berr.Needed <= 5 {
		t.Errorf("unexpected detail: %+v", berr)
	}
}

func TestAssembleStrict_RestatesConstraints(t *testing.T) {
	p := assemblePersona()
	req, err := AssembleStrict(p, nil, session.Window{}, "q", 2048)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(req.SystemPreamble, "IMPORTANT") {
		t.Errorf("strict preamble missing addendum: %q", req.SystemPreamble)
	}

	plain, _ := Assemble(p, nil, session.Window{}, "q", 2048)
	if plain.SystemPreamble == req.SystemPreamble {
		t.Error("strict and plain preambles should differ")
	}
}

func TestRenderFlat_Shape(t *testing.T) {
	req := &model.GenerationRequest{
		SystemPreamble:    "You are Harry.\n",
		KnowledgeSnippets: []string{"fact one"},
		HistorySnippet:    "User: hi\nHarry: hello",
		UserMessage:       "next question",
	}
	flat := RenderFlat(req)
	for _, want := range []string{"You are Harry.", "Relevant knowledge:", "- fact one", "User: hi", "User: next question"} {
		if !strings.Contains(flat, want) {
			t.Errorf("flat prompt missing %q:\n%s", want, flat)
		}
	}
	// Preamble before knowledge before history before the user message.
	if strings.Index(flat, "Relevant knowledge:") > strings.Index(flat, "User: hi") {
		t.Error("knowledge should precede history")
	}
}

func TestSummarizeRequest(t *testing.T) {
	p := assemblePersona()
	req := SummarizeRequest(p, "Old summary.", []model.Turn{
		{Index: 0, Role: model.RoleUser, Text: "hi"},
		{Index: 1, Role: model.RoleCharacter, Text: "hello"},
	}, 256)

	if !strings.Contains(req.SystemPreamble, "Summarize") {
		t.Errorf("unexpected preamble: %q", req.SystemPreamble)
	}
	if !strings.Contains(req.UserMessage, "Current summary:\nOld summary.") {
		t.Errorf("previous summary missing: %q", req.UserMessage)
	}
	if !strings.Contains(req.UserMessage, "Harry: hello") {
		t.Errorf("turns missing: %q", req.UserMessage)
	}
	if req.MaxTokensBudget != 256 {
		t.Errorf("budget: %d", req.MaxTokensBudget)
	}
}
