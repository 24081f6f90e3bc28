package api

import (
	"github.com/gofiber/fiber/v2"

	"ragbridge/pipeline"
	"ragbridge/types"
)

type SearchHandler struct {
	pipeline *pipeline.Pipeline
}

func NewSearchHandler(p *pipeline.Pipeline) *SearchHandler {
	return &SearchHandler{pipeline: p}
}

func (h *SearchHandler) HandleSemantic(c *fiber.Ctx) error {
	var params types.SearchParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	matches, err := h.pipeline.Search(c.UserContext(), params.Collection, params.InputText, params.TopK)
	if err != nil {
		return err
	}
	if matches == nil {
		matches = []types.SearchMatch{}
	}
	return c.JSON(matches)
}

func (h *SearchHandler) HandleAnswer(c *fiber.Ctx) error {
	var params types.SearchParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	answer, err := h.pipeline.Answer(c.UserContext(), params.Collection, params.InputText)
	if err != nil {
		return err
	}
	return c.JSON(answer)
}

// HandleEmbedding returns the raw embedding of input_text.
func (h *SearchHandler) HandleEmbedding(c *fiber.Ctx) error {
	var params types.EmbeddingParams
	if c.QueryParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	vec, err := h.pipeline.Embedding(c.UserContext(), params.InputText)
	if err != nil {
		return err
	}
	return c.JSON(vec)
}

// HandleChat sends prompt to the LLM with no retrieval.
func (h *SearchHandler) HandleChat(c *fiber.Ctx) error {
	var params types.ChatParams
	if c.QueryParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	answer, err := h.pipeline.Chat(c.UserContext(), params.Prompt)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"answer": answer})
}
