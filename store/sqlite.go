package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	_ "modernc.org/sqlite"

	"ragbridge/types"
)

const providerSQLite = "sqlite"

// SQLiteStore is an embedded, single-file store. Vectors are kept as
// little-endian float32 blobs and ranked in process.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &types.ProviderError{Provider: providerSQLite, Err: err}
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	schema := `
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		dimension INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS collection_entries (
		collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
		id INTEGER NOT NULL,
		name TEXT NOT NULL,
		vector BLOB NOT NULL,
		PRIMARY KEY (collection, id)
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return &types.ProviderError{Provider: providerSQLite, Err: fmt.Errorf("init schema: %w", err)}
	}
	return nil
}

func (s *SQLiteStore) Exists(ctx context.Context, collection string) (bool, error) {
	_, err := s.dimension(ctx, collection)
	if errors.Is(err, types.ErrCollectionNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLiteStore) Create(ctx context.Context, collection string, dimension int, distance types.Distance) error {
	if err := checkLocalCreate(collection, dimension, distance); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (name, dimension) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`,
		collection, dimension)
	if err != nil {
		return &types.ProviderError{Provider: providerSQLite, Err: err}
	}
	return nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, collection string, entries []types.CollectionEntry) error {
	dimension, err := s.dimension(ctx, collection)
	if err != nil {
		return err
	}
	if err := checkDimensions(dimension, entries); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &types.ProviderError{Provider: providerSQLite, Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO collection_entries (collection, id, name, vector)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET name = excluded.name, vector = excluded.vector`)
	if err != nil {
		return &types.ProviderError{Provider: providerSQLite, Err: err}
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, collection, e.ID, e.Name, encodeVector(e.Vector)); err != nil {
			return &types.ProviderError{Provider: providerSQLite, Err: fmt.Errorf("entry %d: %w", e.ID, err)}
		}
	}
	if err := tx.Commit(); err != nil {
		return &types.ProviderError{Provider: providerSQLite, Err: err}
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, collection string, vector []float32, topK int) ([]types.SearchMatch, error) {
	if err := checkTopK(topK); err != nil {
		return nil, err
	}
	dimension, err := s.dimension(ctx, collection)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, vector FROM collection_entries WHERE collection = ?`, collection)
	if err != nil {
		return nil, &types.ProviderError{Provider: providerSQLite, Err: err}
	}
	defer rows.Close()

	var entries []localEntry
	for rows.Next() {
		var (
			e    localEntry
			blob []byte
		)
		if err := rows.Scan(&e.id, &e.name, &blob); err != nil {
			return nil, &types.ProviderError{Provider: providerSQLite, Err: err}
		}
		if e.vector, err = decodeVector(blob); err != nil {
			return nil, types.NewComputationError("decode vector", fmt.Errorf("entry %d: %w", e.id, err))
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &types.ProviderError{Provider: providerSQLite, Err: err}
	}

	return rankLocal(dimension, entries, vector, topK)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) dimension(ctx context.Context, collection string) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, collection).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", types.ErrCollectionNotFound, collection)
	}
	if err != nil {
		return 0, &types.ProviderError{Provider: providerSQLite, Err: err}
	}
	return dim, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
