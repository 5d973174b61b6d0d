// Package chunker splits character source text into retrieval-sized chunks.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultTargetSize = 800
	DefaultMaxSize    = 1200
)

// Options configures chunking behavior. MaxSize is a hard cap; chunks
// prefer paragraph boundaries, then sentence boundaries.
type Options struct {
	TargetSize int
	MaxSize    int
}

// DefaultOptions returns default chunking options.
func DefaultOptions() Options {
	return Options{
		TargetSize: DefaultTargetSize,
		MaxSize:    DefaultMaxSize,
	}
}

// Chunk splits text into chunks. Short text (<= MaxSize) returns a
// single chunk. Empty or whitespace-only text returns nil.
func Chunk(text string, opts Options) []string {
	if opts.TargetSize == 0 {
		opts = DefaultOptions()
	}

	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil
	}

	if len(text) <= opts.MaxSize {
		return []string{text}
	}

	return merge(paragraphs(text), opts)
}

// paragraphs splits text on blank lines, collapsing internal newlines.
func paragraphs(text string) []string {
	var paras []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}

// merge combines small paragraphs up to TargetSize and hard-splits
// oversized ones on sentence boundaries.
func merge(paras []string, opts Options) []string {
	var chunks []string
	var accum string

	flush := func() {
		if accum == "" {
			return
		}
		if len(accum) > opts.MaxSize {
			chunks = append(chunks, splitSentences(accum, opts)...)
		} else {
			chunks = append(chunks, accum)
		}
		accum = ""
	}

	for _, p := range paras {
		if accum == "" {
			accum = p
			continue
		}
		if len(accum)+len(p)+1 <= opts.TargetSize {
			accum += " " + p
		} else {
			flush()
			accum = p
		}
	}
	flush()

	return chunks
}

// splitSentences breaks a paragraph exceeding MaxSize on sentence ends.
// A sentence longer than MaxSize on its own is cut at the cap, backed
// up to a rune boundary so multi-byte text never splits mid-rune.
func splitSentences(text string, opts Options) []string {
	var chunks []string
	var accum string

	for _, s := range sentenceSplit(text) {
		for len(s) > opts.MaxSize {
			cut := opts.MaxSize
			for cut > 0 && !utf8.RuneStart(s[cut]) {
				cut--
			}
			if cut == 0 {
				cut = opts.MaxSize // input was not valid UTF-8 to begin with
			}
			chunks = append(chunks, strings.TrimSpace(s[:cut]))
			s = strings.TrimSpace(s[cut:])
		}
		if s == "" {
			continue
		}
		if accum == "" {
			accum = s
		} else if len(accum)+len(s)+1 <= opts.TargetSize {
			accum += " " + s
		} else {
			chunks = append(chunks, accum)
			accum = s
		}
	}
	if accum != "" {
		chunks = append(chunks, accum)
	}

	return chunks
}

// sentenceSplit splits on terminal punctuation followed by whitespace
// and an uppercase letter or opening quote. Good enough for prose.
func sentenceSplit(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes)-1; i++ {
		switch runes[i] {
		case '.', '!', '?':
			j := i + 1
			for j < len(runes) && runes[j] == '"' {
				j++
			}
			if j >= len(runes) || !unicode.IsSpace(runes[j]) {
				continue
			}
			k := j
			for k < len(runes) && unicode.IsSpace(runes[k]) {
				k++
			}
			if k < len(runes) && (unicode.IsUpper(runes[k]) || runes[k] == '"') {
				if s := strings.TrimSpace(string(runes[start:j])); s != "" {
					sentences = append(sentences, s)
				}
				start = k
				i = k - 1
			}
		}
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}
