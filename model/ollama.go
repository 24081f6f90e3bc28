package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ragbridge/types"
)

const providerOllama = "ollama"

// OllamaEmbedder creates embeddings through Ollama's /api/embeddings.
type OllamaEmbedder struct {
	apiURL string
	model  string
	client *http.Client
}

type OllamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type OllamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func NewOllamaEmbedder(apiURL, model string, timeout time.Duration) *OllamaEmbedder {
	return &OllamaEmbedder{
		apiURL: apiURL,
		model:  model,
		client: newHTTPClient(timeout),
	}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := postJSON(ctx, e.client, providerOllama, e.apiURL, nil, OllamaEmbeddingRequest{
		Model:  e.model,
		Prompt: text,
	})
	if err != nil {
		return nil, err
	}

	var resp OllamaEmbeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &types.ProviderError{Provider: providerOllama, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	if len(resp.Embedding) == 0 {
		return nil, &types.ProviderError{Provider: providerOllama, Detail: "empty embedding in response"}
	}
	return toFloat32(resp.Embedding), nil
}

// OllamaGenerator sends prompts to Ollama's /api/generate.
type OllamaGenerator struct {
	apiURL      string
	model       string
	system      string
	temperature float64
	client      *http.Client
}

type GenerateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type GenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func NewOllamaGenerator(apiURL, model, system string, temperature float64, timeout time.Duration) *OllamaGenerator {
	return &OllamaGenerator{
		apiURL:      apiURL,
		model:       model,
		system:      system,
		temperature: temperature,
		client:      newHTTPClient(timeout),
	}
}

func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := postJSON(ctx, g.client, providerOllama, g.apiURL, nil, GenerateRequest{
		Model:   g.model,
		System:  g.system,
		Prompt:  prompt,
		Options: map[string]any{"temperature": g.temperature},
	})
	if err != nil {
		return "", err
	}
	return decodeGenerate(body)
}

// decodeGenerate accepts either a single JSON object or the NDJSON stream
// Ollama falls back to when a proxy ignores stream:false.
func decodeGenerate(body []byte) (string, error) {
	var single GenerateResponse
	if err := json.Unmarshal(body, &single); err == nil {
		return single.Response, nil
	}

	var out strings.Builder
	dec := json.NewDecoder(bytes.NewReader(body))
	for dec.More() {
		var part GenerateResponse
		if err := dec.Decode(&part); err != nil {
			return "", &types.ProviderError{Provider: providerOllama, Err: fmt.Errorf("failed to decode stream: %w", err)}
		}
		out.WriteString(part.Response)
		if part.Done {
			break
		}
	}
	return out.String(), nil
}
