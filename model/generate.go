package model

import (
	"context"
	"fmt"
	"log/slog"

	"ragbridge/config"
	"ragbridge/types"
)

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// systemPrompt goes into Ollama's system field. OpenAI requests carry only
// the user message.
const systemPrompt = `You are a helpful assistant. Answer clearly and to the point using the supplied context.
Don't add introductions like 'Of course!' or 'Here's the answer:'.`

func NewGenerator(cfg config.LLMConfig) (Generator, error) {
	switch cfg.Provider {
	case providerOllama:
		slog.Default().Info("generator configured", "provider", cfg.Provider, "model", cfg.Model)
		return NewOllamaGenerator(cfg.URL, cfg.Model, systemPrompt, cfg.Temperature, cfg.Timeout), nil
	case providerOpenAI:
		slog.Default().Info("generator configured", "provider", cfg.Provider, "model", cfg.OpenAIModel)
		return NewOpenAIGenerator(cfg.OpenAIURL, cfg.OpenAIKey, cfg.OpenAIModel, "", cfg.Temperature, cfg.AnswerCharLimit, cfg.Timeout), nil
	}
	return nil, types.NewConfigError(fmt.Errorf("unknown llm provider %q", cfg.Provider))
}
