package chunker

import (
	"fmt"

	"ragbridge/types"
)

// Chunker binds a mode and window parameters into a reusable strategy.
type Chunker struct {
	mode    Mode
	size    int
	overlap int
	tok     Tokenizer
}

type Option func(*Chunker)

// WithTokenizer overrides the tiktoken encoder used in token mode.
func WithTokenizer(tok Tokenizer) Option {
	return func(c *Chunker) {
		c.tok = tok
	}
}

// New validates the parameters up front. Token mode loads the named tiktoken
// encoding unless a tokenizer was supplied with WithTokenizer.
func New(mode Mode, size, overlap int, encoding string, opts ...Option) (*Chunker, error) {
	if err := CheckParams(size, overlap); err != nil {
		return nil, err
	}
	c := &Chunker{mode: mode, size: size, overlap: overlap}
	for _, opt := range opts {
		opt(c)
	}

	switch mode {
	case ModeCharacter, ModeWord:
	case ModeToken:
		if c.tok == nil {
			tok, err := NewTiktoken(encoding)
			if err != nil {
				return nil, err
			}
			c.tok = tok
		}
	default:
		return nil, types.NewConfigError(fmt.Errorf("unknown chunk mode %q", mode))
	}
	return c, nil
}

func (c *Chunker) Mode() Mode { return c.mode }

func (c *Chunker) Chunk(text string) ([]types.Chunk, error) {
	return c.chunkFrom(text, 0)
}

// ChunkDocuments chunks every document in order; chunk indices keep counting
// across documents.
func (c *Chunker) ChunkDocuments(docs []types.Document) ([]types.Chunk, error) {
	var chunks []types.Chunk
	for _, doc := range docs {
		next, err := c.chunkFrom(doc.Content, len(chunks))
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, next...)
	}
	return chunks, nil
}

func (c *Chunker) chunkFrom(text string, first int) ([]types.Chunk, error) {
	var (
		parts []string
		err   error
	)
	switch c.mode {
	case ModeToken:
		parts, err = SplitTokens(c.tok, text, c.size, c.overlap)
	case ModeCharacter:
		parts, err = SplitCharacters(text, c.size, c.overlap)
	case ModeWord:
		parts, err = SplitWords(text, c.size, c.overlap)
	}
	if err != nil {
		return nil, err
	}

	chunks := make([]types.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = types.Chunk{Index: first + i, Text: p}
	}
	return chunks, nil
}
