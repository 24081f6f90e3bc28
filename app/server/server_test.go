package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragbridge/app/api"
	"ragbridge/app/middleware"
	"ragbridge/chunker"
	"ragbridge/config"
	"ragbridge/pipeline"
	"ragbridge/store"
	"ragbridge/types"
)

type keywordEmbedder struct{}

func (keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	switch {
	case strings.Contains(text, "slow"):
		<-ctx.Done()
		return nil, ctx.Err()
	case strings.Contains(text, "boom"):
		return nil, &types.ProviderError{Provider: "fake", Status: 500, Detail: "exploded"}
	case strings.Contains(text, "cat"):
		return []float32{1, 0}, nil
	}
	return []float32{0, 1}, nil
}

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, prompt string) (string, error) {
	return "answer to: " + prompt[strings.LastIndex(prompt, "Question: ")+len("Question: "):], nil
}

func newTestServer(t *testing.T, opts ...func(*config.Config)) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.LLM.OpenAIKey = "sk-secret"
	cfg.Store.Type = "memory"
	for _, opt := range opts {
		opt(&cfg)
	}

	ch, err := chunker.New(chunker.ModeWord, 4, 1, "")
	require.NoError(t, err)
	st := store.NewMemoryStore()
	p := pipeline.New(pipeline.Settings{Dimension: 2, BatchSize: 8, SearchTopK: 3, AnswerTopK: 2}, ch, keywordEmbedder{}, echoGenerator{}, st)
	return New(&cfg, p, st)
}

func multipartBody(t *testing.T, fields map[string]string, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func do(t *testing.T, s *Server, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func postJSON(t *testing.T, s *Server, path string, payload any) (*http.Response, []byte) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return do(t, s, req)
}

func upload(t *testing.T, s *Server, collection, filename, content string) (*http.Response, []byte) {
	t.Helper()
	fields := map[string]string{}
	if collection != "" {
		fields["collection"] = collection
	}
	body, contentType := multipartBody(t, fields, filename, []byte(content))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", body)
	req.Header.Set("Content-Type", contentType)
	return do(t, s, req)
}

func TestHealthy(t *testing.T) {
	s := newTestServer(t)
	resp, body := do(t, s, httptest.NewRequest(http.MethodGet, "/check/healthy", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"result":"ok"}`, string(body))
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))
}

func TestUploadThenSearch(t *testing.T) {
	s := newTestServer(t)

	resp, body := upload(t, s, "pets", "pets.txt", "the dog runs far away while the cat sleeps on a warm mat")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var res types.IngestResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.True(t, res.Success)
	assert.Equal(t, "pets", res.Collection)
	assert.Equal(t, 4, res.Chunks)
	assert.Equal(t, 4, res.Uploaded)

	resp, body = postJSON(t, s, "/api/v1/search/semantic", map[string]any{
		"collection": "pets", "input_text": "where is the cat?", "top_k": 1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var matches []types.SearchMatch
	require.NoError(t, json.Unmarshal(body, &matches))
	require.Len(t, matches, 1)
	assert.Contains(t, matches[0].Name, "cat")
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
}

func TestUploadErrors(t *testing.T) {
	s := newTestServer(t)

	resp, _ := upload(t, s, "pets", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "missing file")

	resp, body := upload(t, s, "", "a.txt", "some text")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var valErr api.ValidationError
	require.NoError(t, json.Unmarshal(body, &valErr))
	assert.Contains(t, valErr.Errors, "Collection")

	resp, body = upload(t, s, "pets", "blank.txt", "   \n  ")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var res types.IngestResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "no extractable text")

	resp, body = upload(t, s, "pets", "fail.txt", "this one goes boom")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &res))
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.FailedIndex)
	assert.Equal(t, 0, res.Uploaded)
}

func TestChunksPreview(t *testing.T) {
	s := newTestServer(t)
	body, contentType := multipartBody(t, nil, "notes.txt", []byte("a b c d e f g"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/chunks", body)
	req.Header.Set("Content-Type", contentType)

	resp, out := do(t, s, req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var chunks []string
	require.NoError(t, json.Unmarshal(out, &chunks))
	assert.Equal(t, []string{"a b c d", "d e f g"}, chunks)
}

func TestCollectionEmbeddings(t *testing.T) {
	s := newTestServer(t)

	resp, body := postJSON(t, s, "/api/v1/collections/embeddings", map[string]any{
		"collection": "facts", "entries": []string{"cats purr", "dogs bark"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var res types.IngestResult
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, 2, res.Uploaded)

	resp, _ = postJSON(t, s, "/api/v1/collections/embeddings", map[string]any{"collection": "facts", "entries": []string{}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAnswer(t *testing.T) {
	s := newTestServer(t)
	resp, _ := postJSON(t, s, "/api/v1/collections/embeddings", map[string]any{
		"collection": "facts", "entries": []string{"cats purr", "dogs bark", "birds sing"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := postJSON(t, s, "/api/v1/search/answer", map[string]any{
		"collection": "facts", "input_text": "what do cats do?",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var ans types.Answer
	require.NoError(t, json.Unmarshal(body, &ans))
	assert.Equal(t, "answer to: what do cats do?\nAnswer:", ans.Answer)
	require.Len(t, ans.Sources, 2)
	assert.Equal(t, "cats purr", ans.Sources[0].Name)
}

func TestSearchUnknownCollection(t *testing.T) {
	s := newTestServer(t)
	resp, body := postJSON(t, s, "/api/v1/search/semantic", map[string]any{
		"collection": "nope", "input_text": "cat",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var apiErr api.Error
	require.NoError(t, json.Unmarshal(body, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Code)
}

func TestSearchRejectsBadTopK(t *testing.T) {
	s := newTestServer(t)
	resp, _ := postJSON(t, s, "/api/v1/search/semantic", map[string]any{
		"collection": "c", "input_text": "cat", "top_k": 1000,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestEmbeddingAndChat(t *testing.T) {
	s := newTestServer(t)

	resp, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/search/embeddings?input_text=cat", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[1,0]`, string(body))

	resp, _ = do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/search/embeddings", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, body = do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/search/embeddings?input_text=boom", nil))
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, string(body), "exploded")

	resp, body = do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/search/chat?prompt=Question:%20hi", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"answer":"answer to: hi"}`, string(body))
}

func TestRequestDeadline(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.RequestTimeout = 50 * time.Millisecond
	})

	resp, _ := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/search/embeddings?input_text=slow", nil))
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)

	resp, _ = do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/search/embeddings?input_text=cat", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConfigIsSanitized(t *testing.T) {
	s := newTestServer(t)
	resp, body := do(t, s, httptest.NewRequest(http.MethodGet, "/api/v1/config", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.NotContains(t, string(body), "sk-secret")
	var cfg config.Config
	require.NoError(t, json.Unmarshal(body, &cfg))
	assert.Equal(t, "***", cfg.LLM.OpenAIKey)
	assert.Equal(t, "memory", cfg.Store.Type)
}
