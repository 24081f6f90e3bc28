package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"ragbridge/types"
)

const providerPostgres = "postgres"

// PostgresStore keeps collections in pgvector tables. The metric chosen at
// creation decides which operator ranks a query.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, &types.ProviderError{Provider: providerPostgres, Err: err}
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &types.ProviderError{Provider: providerPostgres, Err: err}
	}

	p := &PostgresStore{pool: pool}
	if err := p.Init(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresStore) Init(ctx context.Context) error {
	query := `
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		dimension INT NOT NULL,
		distance TEXT NOT NULL CHECK (distance IN ('Cosine','Dot','Euclid')),
		created_at TIMESTAMP WITH TIME ZONE DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS collection_entries (
		collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
		id BIGINT NOT NULL,
		name TEXT NOT NULL,
		embedding vector NOT NULL,
		PRIMARY KEY (collection, id)
	);
	`
	if _, err := p.pool.Exec(ctx, query); err != nil {
		return &types.ProviderError{Provider: providerPostgres, Err: fmt.Errorf("init schema: %w", err)}
	}
	return nil
}

func (p *PostgresStore) Exists(ctx context.Context, collection string) (bool, error) {
	var ok bool
	err := p.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM collections WHERE name = $1)", collection).Scan(&ok)
	if err != nil {
		return false, &types.ProviderError{Provider: providerPostgres, Err: err}
	}
	return ok, nil
}

func (p *PostgresStore) Create(ctx context.Context, collection string, dimension int, distance types.Distance) error {
	if collection == "" {
		return types.NewConfigError(types.ErrEmptyCollection)
	}
	if !distance.Valid() {
		return types.NewConfigError(fmt.Errorf("%w: %s", types.ErrUnsupportedMetric, distance))
	}

	_, err := p.pool.Exec(ctx,
		`INSERT INTO collections (name, dimension, distance) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING`,
		collection, dimension, string(distance))
	if err != nil {
		return &types.ProviderError{Provider: providerPostgres, Err: err}
	}
	slog.Default().Info("postgres collection created", "collection", collection, "dimension", dimension, "distance", distance)
	return nil
}

func (p *PostgresStore) Upsert(ctx context.Context, collection string, entries []types.CollectionEntry) error {
	if len(entries) == 0 {
		return nil
	}
	dimension, _, err := p.collectionInfo(ctx, collection)
	if err != nil {
		return err
	}
	if err := checkDimensions(dimension, entries); err != nil {
		return err
	}

	query := `INSERT INTO collection_entries (collection, id, name, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (collection, id) DO UPDATE SET
			name = EXCLUDED.name,
			embedding = EXCLUDED.embedding`

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(query, collection, e.ID, e.Name, pgvector.NewVector(e.Vector))
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return &types.ProviderError{Provider: providerPostgres, Err: err}
	}
	return nil
}

func (p *PostgresStore) Query(ctx context.Context, collection string, vector []float32, topK int) ([]types.SearchMatch, error) {
	if err := checkTopK(topK); err != nil {
		return nil, err
	}
	dimension, distance, err := p.collectionInfo(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != dimension {
		return nil, types.NewComputationError("query",
			fmt.Errorf("%w: query has %d, collection has %d", types.ErrDimensionMismatch, len(vector), dimension))
	}

	op, score := operator(distance)
	query := fmt.Sprintf(`
		SELECT name, %s AS score
		FROM collection_entries
		WHERE collection = $2
		ORDER BY embedding %s $1, id
		LIMIT $3
	`, score, op)

	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(vector), collection, topK)
	if err != nil {
		return nil, &types.ProviderError{Provider: providerPostgres, Err: err}
	}
	defer rows.Close()

	var matches []types.SearchMatch
	for rows.Next() {
		var m types.SearchMatch
		if err := rows.Scan(&m.Name, &m.Score); err != nil {
			return nil, &types.ProviderError{Provider: providerPostgres, Err: err}
		}
		slog.Default().Debug("postgres match", "collection", collection, "score", m.Score)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.ProviderError{Provider: providerPostgres, Err: err}
	}
	return matches, nil
}

// operator maps a metric to its pgvector operator and a score expression
// where higher is better: cosine similarity, inner product and negated L2
// distance.
func operator(d types.Distance) (op, score string) {
	switch d {
	case types.DistanceDot:
		return "<#>", "-(embedding <#> $1)"
	case types.DistanceEuclid:
		return "<->", "-(embedding <-> $1)"
	default:
		return "<=>", "1 - (embedding <=> $1)"
	}
}

func (p *PostgresStore) collectionInfo(ctx context.Context, collection string) (int, types.Distance, error) {
	var (
		dimension int
		distance  string
	)
	err := p.pool.QueryRow(ctx, "SELECT dimension, distance FROM collections WHERE name = $1", collection).
		Scan(&dimension, &distance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", fmt.Errorf("%w: %s", types.ErrCollectionNotFound, collection)
	}
	if err != nil {
		return 0, "", &types.ProviderError{Provider: providerPostgres, Err: err}
	}
	return dimension, types.Distance(distance), nil
}

// Close releases the connection pool.
func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		slog.Default().Info("postgres connection pool is closed")
	}
	return nil
}
