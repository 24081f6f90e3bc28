// Package store keeps collections of embedded chunks. Qdrant is the primary
// backend; Postgres (pgvector), SQLite and an in-memory store implement the
// same contract.
package store

import (
	"context"
	"fmt"
	"sort"

	"ragbridge/config"
	"ragbridge/ranker"
	"ragbridge/types"
)

type VectorStorer interface {
	Exists(ctx context.Context, collection string) (bool, error)
	Create(ctx context.Context, collection string, dimension int, distance types.Distance) error
	// Upsert writes entries by id; an existing id is overwritten.
	Upsert(ctx context.Context, collection string, entries []types.CollectionEntry) error
	// Query returns at most topK matches, best first.
	Query(ctx context.Context, collection string, vector []float32, topK int) ([]types.SearchMatch, error)
	Close() error
}

// New opens the backend selected by cfg.Type.
func New(ctx context.Context, cfg config.StoreConfig) (VectorStorer, error) {
	switch cfg.Type {
	case "qdrant":
		return NewQdrantStore(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.QdrantTimeout), nil
	case "postgres":
		return NewPostgresStore(ctx, cfg.PostgresDSN())
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	case "memory":
		return NewMemoryStore(), nil
	}
	return nil, types.NewConfigError(fmt.Errorf("unknown vector store %q", cfg.Type))
}

func checkTopK(topK int) error {
	if topK <= 0 {
		return types.NewConfigError(types.ErrInvalidTopK)
	}
	return nil
}

// checkLocalCreate guards the stores that rank in process, which only
// implement cosine similarity.
func checkLocalCreate(collection string, dimension int, distance types.Distance) error {
	if collection == "" {
		return types.NewConfigError(types.ErrEmptyCollection)
	}
	if dimension <= 0 {
		return types.NewConfigError(fmt.Errorf("collection %q: dimension must be positive, got %d", collection, dimension))
	}
	if distance != types.DistanceCosine {
		return types.NewConfigError(fmt.Errorf("%w: %s", types.ErrUnsupportedMetric, distance))
	}
	return nil
}

func checkDimensions(dimension int, entries []types.CollectionEntry) error {
	for _, e := range entries {
		if len(e.Vector) != dimension {
			return types.NewComputationError("upsert",
				fmt.Errorf("%w: entry %d has %d, collection has %d", types.ErrDimensionMismatch, e.ID, len(e.Vector), dimension))
		}
	}
	return nil
}

type localEntry struct {
	id     int64
	name   string
	vector []float32
}

// rankLocal orders entries by id before ranking so ties resolve the same way
// on every call.
func rankLocal(dimension int, entries []localEntry, query []float32, topK int) ([]types.SearchMatch, error) {
	if len(query) != dimension {
		return nil, types.NewComputationError("query",
			fmt.Errorf("%w: query has %d, collection has %d", types.ErrDimensionMismatch, len(query), dimension))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	candidates := make([]ranker.Candidate, len(entries))
	for i, e := range entries {
		candidates[i] = ranker.Candidate{Label: e.name, Vector: e.vector}
	}
	return ranker.Rank(query, candidates, topK)
}
