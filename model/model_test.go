package model

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragbridge/config"
	"ragbridge/types"
)

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req OllamaEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic", req.Model)
		assert.Equal(t, "hello", req.Prompt)
		w.Write([]byte(`{"embedding":[0.5,0.25,-1]}`))
	}))
	defer srv.Close()

	vec, err := NewOllamaEmbedder(srv.URL, "nomic", time.Second).Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25, -1}, vec)
}

func TestOllamaEmbedderErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "model not loaded"},
		{"rate limited", http.StatusTooManyRequests, "slow down"},
		{"empty vector", http.StatusOK, `{"embedding":[]}`},
		{"garbage", http.StatusOK, `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			vec, err := NewOllamaEmbedder(srv.URL, "m", time.Second).Embed(context.Background(), "x")
			require.Error(t, err)
			assert.Nil(t, vec)
			assert.True(t, types.IsProviderError(err))

			var pe *types.ProviderError
			require.True(t, errors.As(err, &pe))
			if tt.status != http.StatusOK {
				assert.Equal(t, tt.status, pe.Status)
				assert.Contains(t, pe.Detail, tt.body)
			}
		})
	}
}

func TestOllamaGeneratorStreamFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		w.Write([]byte("{\"response\":\"Hel\",\"done\":false}\n{\"response\":\"lo\",\"done\":true}\n"))
	}))
	defer srv.Close()

	out, err := NewOllamaGenerator(srv.URL, "llama", "", 0.2, time.Second).Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello", out)
}

func TestOllamaGeneratorSingleObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"Paris","done":true}`))
	}))
	defer srv.Close()

	out, err := NewOllamaGenerator(srv.URL, "llama", "sys", 0.2, time.Second).Generate(context.Background(), "capital?")
	require.NoError(t, err)
	assert.Equal(t, "Paris", out)
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Write([]byte(`{"data":[{"index":0,"embedding":[1,2]}]}`))
	}))
	defer srv.Close()

	vec, err := NewOpenAIEmbedder(srv.URL+"/v1/", "sk-test", "text-embedding-3-small", time.Second).
		Embed(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)
}

func TestOpenAIGeneratorAppendsLengthInstruction(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"42"}}]}`))
	}))
	defer srv.Close()

	out, err := NewOpenAIGenerator(srv.URL, "k", "gpt-4o-mini", "", 0.7, 450, time.Second).
		Generate(context.Background(), "meaning of life?")
	require.NoError(t, err)
	assert.Equal(t, "42", out)

	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "meaning of life?\n [Response should not be more than 450 characters]", got.Messages[0].Content)
	assert.Equal(t, 0.7, got.Temperature)
}

func TestOpenAIGeneratorNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIGenerator(srv.URL, "", "m", "", 0, 0, time.Second).Generate(context.Background(), "q")
	assert.True(t, types.IsProviderError(err))
}

type stubEmbedder struct {
	vec []float32
	err error
}

func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) { return s.vec, s.err }

func TestEmbedderFacade(t *testing.T) {
	ctx := context.Background()

	vec, err := WrapEmbedder(stubEmbedder{vec: []float32{1, 2, 3}}, "stub", 3, 0).Embed(ctx, "x")
	require.NoError(t, err)
	assert.Len(t, vec, 3)

	_, err = WrapEmbedder(stubEmbedder{vec: []float32{1, 2}}, "stub", 3, 0).Embed(ctx, "x")
	assert.True(t, types.IsComputationError(err))
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)

	_, err = WrapEmbedder(stubEmbedder{vec: []float32{0, 0, 0}}, "stub", 3, 0).Embed(ctx, "x")
	assert.True(t, types.IsComputationError(err))
	assert.ErrorIs(t, err, types.ErrZeroVector)

	_, err = WrapEmbedder(stubEmbedder{}, "stub", 0, 0).Embed(ctx, "x")
	assert.True(t, types.IsProviderError(err), "a nil vector must never pass as success")

	boom := errors.New("boom")
	_, err = WrapEmbedder(stubEmbedder{err: boom}, "stub", 3, 0).Embed(ctx, "x")
	assert.ErrorIs(t, err, boom)
}

func TestEmbedderRateLimitHonoursContext(t *testing.T) {
	e := WrapEmbedder(stubEmbedder{vec: []float32{1}}, "stub", 1, 0.001)
	_, err := e.Embed(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = e.Embed(ctx, "second")
	require.Error(t, err)
}

func TestNewEmbedderAndGeneratorSelectProvider(t *testing.T) {
	_, err := NewEmbedder(config.EmbeddingConfig{Provider: "cohere"})
	assert.True(t, types.IsConfigError(err))

	e, err := NewEmbedder(config.EmbeddingConfig{Provider: "ollama", OllamaURL: "http://x", OllamaModel: "m", Dimension: 8})
	require.NoError(t, err)
	assert.Equal(t, 8, e.Dimension())

	g, err := NewGenerator(config.LLMConfig{Provider: "openai", OpenAIURL: "http://x"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIGenerator{}, g)

	_, err = NewGenerator(config.LLMConfig{Provider: "bard"})
	assert.True(t, types.IsConfigError(err))
}

func TestProviderErrorBodyIsTrimmed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(strings.Repeat("x", 5000)))
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder(srv.URL, "m", time.Second).Embed(context.Background(), "x")
	var pe *types.ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Len(t, pe.Detail, maxErrorBody)
}
