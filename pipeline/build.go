package pipeline

import (
	"context"
	"fmt"

	"ragbridge/chunker"
	"ragbridge/config"
	"ragbridge/model"
	"ragbridge/store"
)

// Build creates every provider named by cfg. The returned store is owned by
// the caller and must be closed.
func Build(ctx context.Context, cfg *config.Config) (*Pipeline, store.VectorStorer, error) {
	ch, err := chunker.New(chunker.Mode(cfg.Chunking.Mode), cfg.Chunking.Size, cfg.Chunking.Overlap, cfg.Chunking.Encoding)
	if err != nil {
		return nil, nil, fmt.Errorf("chunker: %w", err)
	}
	embedder, err := model.NewEmbedder(cfg.Embedding)
	if err != nil {
		return nil, nil, fmt.Errorf("embedder: %w", err)
	}
	generator, err := model.NewGenerator(cfg.LLM)
	if err != nil {
		return nil, nil, fmt.Errorf("generator: %w", err)
	}
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("vector store: %w", err)
	}
	return New(SettingsFrom(cfg), ch, embedder, generator, st), st, nil
}
