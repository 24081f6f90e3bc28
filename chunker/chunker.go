// Package chunker splits document text into overlapping fixed-size windows
// measured in tokens, characters or whitespace separated words.
package chunker

import (
	"fmt"
	"strings"

	"ragbridge/types"
)

type Mode string

const (
	ModeToken     Mode = "token"
	ModeCharacter Mode = "character"
	ModeWord      Mode = "word"
)

const (
	DefaultChunkSize    = 200
	DefaultChunkOverlap = 50
)

// Span is a half-open [Start, End) window over a sequence of units.
type Span struct {
	Start int
	End   int
}

// Windows walks a sequence of n units with stride size-overlap. The last
// window is clamped to n and the walk stops once a window reaches n.
func Windows(n, size, overlap int) ([]Span, error) {
	if err := CheckParams(size, overlap); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}

	stride := size - overlap
	spans := make([]Span, 0, n/stride+1)
	for start := 0; start < n; start += stride {
		end := start + size
		if end > n {
			end = n
		}
		spans = append(spans, Span{Start: start, End: end})
		if end == n {
			break
		}
	}
	return spans, nil
}

func CheckParams(size, overlap int) error {
	if size <= 0 || overlap < 0 || overlap >= size {
		return types.NewConfigError(fmt.Errorf("%w: size=%d overlap=%d", types.ErrInvalidChunkParams, size, overlap))
	}
	return nil
}

// SplitCharacters windows over runes so multi-byte characters are never cut.
func SplitCharacters(text string, size, overlap int) ([]string, error) {
	if err := CheckParams(size, overlap); err != nil {
		return nil, err
	}
	if isBlank(text) {
		return nil, nil
	}
	runes := []rune(text)
	spans, err := Windows(len(runes), size, overlap)
	if err != nil {
		return nil, err
	}
	return collect(spans, func(s Span) string { return string(runes[s.Start:s.End]) }), nil
}

// SplitWords windows over whitespace separated words and rejoins each window
// with single spaces.
func SplitWords(text string, size, overlap int) ([]string, error) {
	if err := CheckParams(size, overlap); err != nil {
		return nil, err
	}
	words := strings.Fields(text)
	spans, err := Windows(len(words), size, overlap)
	if err != nil {
		return nil, err
	}
	return collect(spans, func(s Span) string { return strings.Join(words[s.Start:s.End], " ") }), nil
}

// SplitTokens encodes text, windows over the token ids and decodes every
// window back to text.
func SplitTokens(tok Tokenizer, text string, size, overlap int) ([]string, error) {
	if err := CheckParams(size, overlap); err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, types.NewConfigError(fmt.Errorf("token mode requires a tokenizer"))
	}
	if isBlank(text) {
		return nil, nil
	}
	tokens := tok.Encode(text)
	spans, err := Windows(len(tokens), size, overlap)
	if err != nil {
		return nil, err
	}
	return collect(spans, func(s Span) string { return tok.Decode(tokens[s.Start:s.End]) }), nil
}

func collect(spans []Span, text func(Span) string) []string {
	out := make([]string, 0, len(spans))
	for _, s := range spans {
		content := text(s)
		if isBlank(content) {
			continue
		}
		out = append(out, content)
	}
	return out
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
