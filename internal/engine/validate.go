package engine

import (
	"strings"

	"github.com/castmark/persona-engine/internal/model"
)

// Validate checks generated text against the persona's forbidden topics
// and hard constraints. Best-effort string heuristics, not a proof of
// consistency: a reply can contradict a fact without tripping them.
func Validate(p model.Persona, text string) error {
	lower := strings.ToLower(text)

	for _, topic := range p.ForbiddenTopics {
		if topic == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(topic)) {
			return &model.ConsistencyViolation{Rule: "forbidden_topic", Detail: topic}
		}
	}

	for _, c := range p.HardConstraints {
		key, value, ok := strings.Cut(c, "=")
		if !ok {
			continue // free-form facts are not string-checkable
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.ToLower(strings.TrimSpace(value))
		if key == "" || value == "" {
			continue
		}
		// The reply talks about the constrained subject but never states
		// the required value: treat as a contradiction.
		if containsWord(lower, key) && !strings.Contains(lower, value) {
			return &model.ConsistencyViolation{Rule: "hard_constraint", Detail: c}
		}
	}

	return nil
}

// containsWord reports whether text contains term as a whole word.
func containsWord(text, term string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], term)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(term)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b == '_'
}
