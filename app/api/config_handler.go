package api

import (
	"github.com/gofiber/fiber/v2"

	"ragbridge/config"
)

const redacted = "***"

type ConfigHandler struct {
	cfg config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: *cfg}
}

// HandleGetConfig returns the effective configuration with credentials
// masked.
func (h *ConfigHandler) HandleGetConfig(c *fiber.Ctx) error {
	return c.JSON(sanitize(h.cfg))
}

func sanitize(cfg config.Config) config.Config {
	mask := func(s *string) {
		if *s != "" {
			*s = redacted
		}
	}
	mask(&cfg.Embedding.OpenAIKey)
	mask(&cfg.LLM.OpenAIKey)
	mask(&cfg.Store.QdrantAPIKey)
	mask(&cfg.Store.PGPass)
	return cfg
}
