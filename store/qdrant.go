package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ragbridge/types"
)

const providerQdrant = "qdrant"

// QdrantStore talks to the Qdrant REST API.
type QdrantStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type qdrantPoint struct {
	ID      int64             `json:"id"`
	Vector  []float32         `json:"vector"`
	Payload map[string]string `json:"payload"`
}

type qdrantSearchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type qdrantSearchResponse struct {
	Result []struct {
		ID      any     `json:"id"`
		Score   float64 `json:"score"`
		Payload struct {
			Name string `json:"name"`
		} `json:"payload"`
	} `json:"result"`
}

func NewQdrantStore(baseURL, apiKey string, timeout time.Duration) *QdrantStore {
	return &QdrantStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (q *QdrantStore) Exists(ctx context.Context, collection string) (bool, error) {
	status, body, err := q.do(ctx, http.MethodGet, q.collectionURL(collection), nil)
	if err != nil {
		return false, err
	}
	switch {
	case status == http.StatusNotFound:
		return false, nil
	case status >= 200 && status < 300:
		return true, nil
	}
	return false, q.statusError(status, body)
}

func (q *QdrantStore) Create(ctx context.Context, collection string, dimension int, distance types.Distance) error {
	if collection == "" {
		return types.NewConfigError(types.ErrEmptyCollection)
	}
	if !distance.Valid() {
		return types.NewConfigError(fmt.Errorf("%w: %s", types.ErrUnsupportedMetric, distance))
	}

	payload := map[string]any{
		"vectors": map[string]any{"size": dimension, "distance": distance},
	}
	status, body, err := q.do(ctx, http.MethodPut, q.collectionURL(collection), payload)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return q.statusError(status, body)
	}
	slog.Default().Info("qdrant collection created", "collection", collection, "dimension", dimension, "distance", distance)
	return nil
}

func (q *QdrantStore) Upsert(ctx context.Context, collection string, entries []types.CollectionEntry) error {
	if len(entries) == 0 {
		return nil
	}
	points := make([]qdrantPoint, len(entries))
	for i, e := range entries {
		points[i] = qdrantPoint{ID: e.ID, Vector: e.Vector, Payload: map[string]string{"name": e.Name}}
	}

	status, body, err := q.do(ctx, http.MethodPut, q.collectionURL(collection)+"/points?wait=true",
		map[string]any{"points": points})
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return q.statusError(status, body)
	}
	return nil
}

func (q *QdrantStore) Query(ctx context.Context, collection string, vector []float32, topK int) ([]types.SearchMatch, error) {
	if err := checkTopK(topK); err != nil {
		return nil, err
	}

	status, body, err := q.do(ctx, http.MethodPost, q.collectionURL(collection)+"/points/search",
		qdrantSearchRequest{Vector: vector, Limit: topK, WithPayload: true})
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", types.ErrCollectionNotFound, collection)
	}
	if status < 200 || status > 299 {
		return nil, q.statusError(status, body)
	}

	var resp qdrantSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &types.ProviderError{Provider: providerQdrant, Err: fmt.Errorf("failed to unmarshal search response: %w", err)}
	}

	matches := make([]types.SearchMatch, 0, len(resp.Result))
	for _, r := range resp.Result {
		matches = append(matches, types.SearchMatch{Name: r.Payload.Name, Score: r.Score})
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (q *QdrantStore) Close() error {
	q.client.CloseIdleConnections()
	return nil
}

func (q *QdrantStore) collectionURL(collection string) string {
	return q.baseURL + "/collections/" + url.PathEscape(collection)
}

func (q *QdrantStore) do(ctx context.Context, method, target string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return 0, nil, &types.ProviderError{Provider: providerQdrant, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &types.ProviderError{Provider: providerQdrant, Status: resp.StatusCode, Err: err}
	}
	return resp.StatusCode, body, nil
}

func (q *QdrantStore) statusError(status int, body []byte) error {
	return &types.ProviderError{Provider: providerQdrant, Status: status, Detail: strings.TrimSpace(string(body))}
}
