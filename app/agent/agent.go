// Package agent turns retrieved matches and a question into the prompt sent
// to the LLM.
package agent

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"ragbridge/types"
)

const DefaultPreamble = `Answer to the questions based on the given context. If there is no information in provided context or context is empty then answer 'No information for this request'. Nothing else.`

// ComposeContext joins match texts with "\n" in ranked order. With maxChars
// > 0 it stops before the first match that would push the context past the
// limit, so a context is never cut mid-chunk. The limit counts runes.
func ComposeContext(matches []types.SearchMatch, maxChars int) string {
	var (
		b     strings.Builder
		chars int
	)
	for i, m := range matches {
		add := utf8.RuneCountInString(m.Name)
		if i > 0 {
			add++
		}
		if maxChars > 0 && chars+add > maxChars {
			break
		}
		chars += add
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Name)
	}
	return b.String()
}

// BuildPrompt lays out instruction, context and question the way the answer
// endpoint has always sent them.
func BuildPrompt(preamble, context, question string) string {
	if preamble == "" {
		preamble = DefaultPreamble
	}
	return fmt.Sprintf("Prompt Instruction: \n%s\n\n Context:\n%s\n\n Question: %s\nAnswer:", preamble, context, question)
}

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

// CountTokens estimates prompt size with the cl100k_base encoding.
func CountTokens(text string) (int, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding("cl100k_base")
	})
	if encErr != nil {
		return 0, encErr
	}
	return len(enc.Encode(text, nil, nil)), nil
}
