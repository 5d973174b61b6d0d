// Package prompt assembles bounded generation requests from persona,
// knowledge, and conversation context.
package prompt

import (
	"fmt"
	"strings"

	"github.com/castmark/persona-engine/internal/model"
	"github.com/castmark/persona-engine/internal/session"
)

// Assemble builds a GenerationRequest within tokenBudget. Pure and
// deterministic: identical inputs produce byte-identical output.
//
// Ordering is fixed: persona preamble, knowledge snippets by rank,
// rolling summary, recent turns oldest-first, user message last. When
// the budget overflows, oldest turns are dropped first, then the
// lowest-ranked snippets. The preamble and user message are never
// dropped; if even those two cannot fit, the budget is misconfigured
// and a *model.BudgetExceededError is returned.
func Assemble(p model.Persona, retrieved []model.KnowledgeChunk, window session.Window, userMessage string, tokenBudget int) (*model.GenerationRequest, error) {
	return assemble(p, retrieved, window, userMessage, tokenBudget, false)
}

// AssembleStrict is Assemble with a strengthened preamble that restates
// the hard constraints imperatively. Used for regeneration after a
// consistency violation.
func AssembleStrict(p model.Persona, retrieved []model.KnowledgeChunk, window session.Window, userMessage string, tokenBudget int) (*model.GenerationRequest, error) {
	return assemble(p, retrieved, window, userMessage, tokenBudget, true)
}

func assemble(p model.Persona, retrieved []model.KnowledgeChunk, window session.Window, userMessage string, tokenBudget int, strict bool) (*model.GenerationRequest, error) {
	preamble := Preamble(p, strict)

	fixed := model.EstimateTokens(preamble) + model.EstimateTokens(userMessage)
	if fixed > tokenBudget {
		return nil, &model.BudgetExceededError{Budget: tokenBudget, Needed: fixed}
	}

	snippets := make([]string, 0, len(retrieved))
	for _, c := range retrieved {
		snippets = append(snippets, c.Text)
	}
	summary := window.Summary
	turns := window.Turns

	// Trim until the rendered request fits: oldest turns go first, then
	// the lowest-ranked snippets, then the summary. Measured against the
	// exact pieces the request will carry.
	for {
		history := renderHistory(p, summary, turns)
		total := fixed + model.EstimateTokens(history)
		for _, s := range snippets {
			total += model.EstimateTokens(s)
		}
		if total <= tokenBudget {
			return &model.GenerationRequest{
				SystemPreamble:    preamble,
				KnowledgeSnippets: snippets,
				HistorySnippet:    history,
				UserMessage:       userMessage,
				MaxTokensBudget:   tokenBudget,
			}, nil
		}
		switch {
		case len(turns) > 0:
			turns = turns[1:]
		case len(snippets) > 0:
			snippets = snippets[:len(snippets)-1]
		case summary != "":
			summary = ""
		default:
			// Unreachable: fixed <= tokenBudget was checked above.
			return nil, &model.BudgetExceededError{Budget: tokenBudget, Needed: total}
		}
	}
}

// renderHistory formats the rolling summary and recent turns into the
// history snippet.
func renderHistory(p model.Persona, summary string, turns []model.Turn) string {
	var parts []string
	if summary != "" {
		parts = append(parts, "Earlier in this conversation: "+summary)
	}
	for _, t := range turns {
		parts = append(parts, renderTurn(p, t))
	}
	return strings.Join(parts, "\n")
}

// Preamble renders the persona constraints as the system instruction.
func Preamble(p model.Persona, strict bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s. Stay in character at all times.\n", p.Name)

	if len(p.VoiceTraits) > 0 {
		b.WriteString("Voice:\n")
		for _, t := range p.VoiceTraits {
			b.WriteString("- " + t + "\n")
		}
	}
	if len(p.HardConstraints) > 0 {
		b.WriteString("Established facts you must never contradict:\n")
		for _, c := range p.HardConstraints {
			b.WriteString("- " + c + "\n")
		}
	}
	if len(p.ForbiddenTopics) > 0 {
		b.WriteString("Never discuss:\n")
		for _, f := range p.ForbiddenTopics {
			b.WriteString("- " + f + "\n")
		}
	}
	if strict {
		b.WriteString("IMPORTANT: your previous reply contradicted the established facts above. ")
		b.WriteString("Answer again and keep every established fact exactly as stated.\n")
	}
	return b.String()
}

// renderTurn formats one turn for the history snippet.
func renderTurn(p model.Persona, t model.Turn) string {
	speaker := "User"
	if t.Role == model.RoleCharacter {
		speaker = p.Name
	}
	return speaker + ": " + t.Text
}

// RenderFlat flattens a request into a single prompt string for
// backends without structured message roles. Deterministic.
func RenderFlat(req *model.GenerationRequest) string {
	var b strings.Builder
	b.WriteString(req.SystemPreamble)
	if len(req.KnowledgeSnippets) > 0 {
		b.WriteString("\nRelevant knowledge:\n")
		for _, s := range req.KnowledgeSnippets {
			b.WriteString("- " + s + "\n")
		}
	}
	if req.HistorySnippet != "" {
		b.WriteString("\n" + req.HistorySnippet + "\n")
	}
	b.WriteString("\nUser: " + req.UserMessage)
	return b.String()
}

// Size is the estimated token size of an assembled request.
func Size(req *model.GenerationRequest) int {
	total := model.EstimateTokens(req.SystemPreamble) + model.EstimateTokens(req.UserMessage)
	for _, s := range req.KnowledgeSnippets {
		total += model.EstimateTokens(s)
	}
	total += model.EstimateTokens(req.HistorySnippet)
	return total
}

// SummarizeRequest builds the compaction prompt for older turns. The
// generation backend collapses them into an updated rolling summary.
func SummarizeRequest(p model.Persona, prevSummary string, turns []model.Turn, tokenBudget int) *model.GenerationRequest {
	var b strings.Builder
	if prevSummary != "" {
		b.WriteString("Current summary:\n" + prevSummary + "\n\n")
	}
	b.WriteString("New turns:\n")
	for _, t := range turns {
		b.WriteString(renderTurn(p, t) + "\n")
	}

	return &model.GenerationRequest{
		SystemPreamble: fmt.Sprintf(
			"Summarize the conversation below between User and %s in third person. "+
				"Keep every fact either side stated. Be brief.\n", p.Name),
		UserMessage:     b.String(),
		MaxTokensBudget: tokenBudget,
	}
}
