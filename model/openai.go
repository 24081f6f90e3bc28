package model

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ragbridge/types"
)

const providerOpenAI = "openai"

type OpenAIEmbedder struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

type openAIEmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIEmbeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func NewOpenAIEmbedder(baseURL, apiKey, model string, timeout time.Duration) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  newHTTPClient(timeout),
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := postJSON(ctx, e.client, providerOpenAI, e.baseURL+"/embeddings", bearer(e.apiKey),
		openAIEmbeddingRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, err
	}

	var resp openAIEmbeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &types.ProviderError{Provider: providerOpenAI, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, &types.ProviderError{Provider: providerOpenAI, Detail: "empty embedding in response"}
	}
	return toFloat32(resp.Data[0].Embedding), nil
}

// OpenAIGenerator talks to the chat completions endpoint. When charLimit is
// positive an instruction bounding the answer length is appended to every
// prompt.
type OpenAIGenerator struct {
	baseURL     string
	apiKey      string
	model       string
	system      string
	temperature float64
	charLimit   int
	client      *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func NewOpenAIGenerator(baseURL, apiKey, model, system string, temperature float64, charLimit int, timeout time.Duration) *OpenAIGenerator {
	return &OpenAIGenerator{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		system:      system,
		temperature: temperature,
		charLimit:   charLimit,
		client:      newHTTPClient(timeout),
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.charLimit > 0 {
		prompt += fmt.Sprintf("\n [Response should not be more than %d characters]", g.charLimit)
	}

	messages := make([]chatMessage, 0, 2)
	if g.system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: g.system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := postJSON(ctx, g.client, providerOpenAI, g.baseURL+"/chat/completions", bearer(g.apiKey), chatRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", err
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &types.ProviderError{Provider: providerOpenAI, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return "", &types.ProviderError{Provider: providerOpenAI, Detail: "no choices in response"}
	}
	return resp.Choices[0].Message.Content, nil
}
