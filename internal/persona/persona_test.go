package persona

import (
	"strings"
	"testing"
)

const sampleYAML = `
character_id: harry-potter
name: Harry Potter
voice_traits:
  - speaks plainly, occasional dry humor
  - modest about his own fame
hard_constraints:
  - house=Gryffindor
  - wand=holly and phoenix feather
forbidden_topics:
  - plot of books the character has not lived through
greeting: "Er — hi. I'm Harry."
fallback: "Sorry, my mind's gone a bit foggy. Ask me something else?"
`

func TestParse_Valid(t *testing.T) {
	p, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.CharacterID != "harry-potter" {
		t.Errorf("unexpected character_id %q", p.CharacterID)
	}
	if len(p.VoiceTraits) != 2 {
		t.Errorf("expected 2 voice traits, got %d", len(p.VoiceTraits))
	}
	if len(p.HardConstraints) != 2 {
		t.Errorf("expected 2 hard constraints, got %d", len(p.HardConstraints))
	}
	if !strings.Contains(p.Greeting, "Harry") {
		t.Errorf("unexpected greeting %q", p.Greeting)
	}
}

func TestParse_MissingID(t *testing.T) {
	_, err := Parse([]byte("name: Nameless"))
	if err == nil {
		t.Fatal("expected error for missing character_id")
	}
}

func TestParse_MissingName(t *testing.T) {
	_, err := Parse([]byte("character_id: ghost"))
	if err == nil {
		t.Fatal("expected error for missing name")
	}
}

func TestParse_BadYAML(t *testing.T) {
	_, err := Parse([]byte("::: not yaml"))
	if err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
