package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunk_EmptyInput(t *testing.T) {
	result := Chunk("", DefaultOptions())
	if result != nil {
		t.Errorf("expected nil, got %v", result)
	}
	result = Chunk("   \n\n  ", DefaultOptions())
	if result != nil {
		t.Errorf("expected nil for whitespace, got %v", result)
	}
}

func TestChunk_ShortContent(t *testing.T) {
	text := "Harry kept his wand under his pillow."
	result := Chunk(text, DefaultOptions())
	if len(result) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(result))
	}
	if result[0] != text {
		t.Errorf("expected %q, got %q", text, result[0])
	}
}

func TestChunk_SplitsOnParagraphs(t *testing.T) {
	para := strings.Repeat("The common room was quiet that evening. ", 20) // ~820 chars
	text := para + "\n\n" + para + "\n\n" + para

	result := Chunk(text, DefaultOptions())
	if len(result) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(result))
	}
}

func TestChunk_RespectsMaxSize(t *testing.T) {
	opts := Options{TargetSize: 200, MaxSize: 300}
	var sentences []string
	for i := 0; i < 20; i++ {
		sentences = append(sentences, "This is a sentence about the castle grounds and the lake.")
	}
	text := strings.Join(sentences, " ")

	result := Chunk(text, opts)
	if len(result) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(result))
	}
	for i, c := range result {
		if len(c) > opts.MaxSize {
			t.Errorf("chunk %d exceeds max size: %d > %d", i, len(c), opts.MaxSize)
		}
	}
}

func TestChunk_MergesSmallParagraphs(t *testing.T) {
	text := "Short paragraph one.\n\nShort paragraph two.\n\nShort paragraph three."
	result := Chunk(text, Options{TargetSize: 400, MaxSize: 600})
	if len(result) != 1 {
		t.Errorf("expected 1 merged chunk, got %d", len(result))
	}
}

func TestChunk_HardCapKeepsRunesIntact(t *testing.T) {
	// A single unbreakable run of two-byte runes forces byte-cap cuts;
	// every cut must land on a rune boundary.
	text := "a" + strings.Repeat("é", 2000)
	result := Chunk(text, DefaultOptions())
	if len(result) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(result))
	}
	for i, c := range result {
		if !utf8.ValidString(c) {
			t.Errorf("chunk %d contains invalid UTF-8: %q", i, c[len(c)-6:])
		}
		if len(c) > DefaultMaxSize {
			t.Errorf("chunk %d exceeds max size: %d", i, len(c))
		}
	}
}

func TestChunk_HardCapsGiantSentence(t *testing.T) {
	opts := Options{TargetSize: 100, MaxSize: 150}
	text := strings.Repeat("word ", 100) // one 500-char "sentence", no terminals
	result := Chunk(text, opts)
	for i, c := range result {
		if len(c) > opts.MaxSize {
			t.Errorf("chunk %d exceeds hard cap: %d", i, len(c))
		}
	}
}

func TestSentenceSplit(t *testing.T) {
	text := `He said it was fine. "Are you sure?" She nodded. It rained later.`
	got := sentenceSplit(text)
	if len(got) != 4 {
		t.Fatalf("expected 4 sentences, got %d: %v", len(got), got)
	}
	if got[0] != "He said it was fine." {
		t.Errorf("unexpected first sentence: %q", got[0])
	}
}
