package api

import (
	"github.com/gofiber/fiber/v2"

	"ragbridge/pipeline"
	"ragbridge/types"
)

type CollectionHandler struct {
	pipeline *pipeline.Pipeline
}

func NewCollectionHandler(p *pipeline.Pipeline) *CollectionHandler {
	return &CollectionHandler{pipeline: p}
}

// HandleEmbeddings stores each entry of the request as its own chunk.
func (h *CollectionHandler) HandleEmbeddings(c *fiber.Ctx) error {
	var params types.EmbeddingsParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	res, err := h.pipeline.IngestEntries(c.UserContext(), params.Collection, params.Entries)
	if err != nil {
		return c.Status(statusFor(err)).JSON(res)
	}
	return c.JSON(res)
}
