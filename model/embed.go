package model

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/time/rate"

	"ragbridge/config"
	"ragbridge/types"
)

// EmbedderInterface is what the pipeline needs from an embedding provider.
type EmbedderInterface interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Embedder wraps a provider with a rate limit and a dimension check so a
// misconfigured model fails loudly instead of poisoning a collection.
type Embedder struct {
	provider  EmbedderInterface
	name      string
	dimension int
	limiter   *rate.Limiter
}

// NewEmbedder picks the provider named by cfg.Provider.
func NewEmbedder(cfg config.EmbeddingConfig) (*Embedder, error) {
	var (
		provider EmbedderInterface
		model    string
	)
	switch cfg.Provider {
	case providerOllama:
		provider = NewOllamaEmbedder(cfg.OllamaURL, cfg.OllamaModel, cfg.Timeout)
		model = cfg.OllamaModel
	case providerOpenAI:
		provider = NewOpenAIEmbedder(cfg.OpenAIURL, cfg.OpenAIKey, cfg.OpenAIModel, cfg.Timeout)
		model = cfg.OpenAIModel
	default:
		return nil, types.NewConfigError(fmt.Errorf("unknown embedding provider %q", cfg.Provider))
	}

	slog.Default().Info("embedder configured", "provider", cfg.Provider, "model", model, "dimension", cfg.Dimension)
	return WrapEmbedder(provider, cfg.Provider, cfg.Dimension, cfg.RPS), nil
}

// WrapEmbedder applies the facade behaviour to any provider. dimension <= 0
// disables the dimension check, rps <= 0 disables rate limiting.
func WrapEmbedder(provider EmbedderInterface, name string, dimension int, rps float64) *Embedder {
	e := &Embedder{provider: provider, name: name, dimension: dimension}
	if rps > 0 {
		burst := int(math.Ceil(rps))
		e.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return e
}

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	vec, err := e.provider.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, &types.ProviderError{Provider: e.name, Detail: "empty embedding"}
	}
	if e.dimension > 0 && len(vec) != e.dimension {
		return nil, types.NewComputationError("embed",
			fmt.Errorf("%w: %s returned %d, expected %d", types.ErrDimensionMismatch, e.name, len(vec), e.dimension))
	}
	if isZero(vec) {
		return nil, types.NewComputationError("embed", fmt.Errorf("%w: %s returned an all-zero embedding", types.ErrZeroVector, e.name))
	}
	return vec, nil
}

// isZero reports whether vec has zero magnitude. Such a vector cannot be
// ranked by cosine and is treated as a placeholder, never as an embedding.
func isZero(vec []float32) bool {
	var sq float64
	for _, x := range vec {
		sq += float64(x) * float64(x)
	}
	return sq == 0
}
