package api

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"ragbridge/loader/extract"
	"ragbridge/pipeline"
	"ragbridge/types"
)

type DocumentHandler struct {
	pipeline *pipeline.Pipeline
	margins  extract.Margins
}

func NewDocumentHandler(p *pipeline.Pipeline, margins extract.Margins) *DocumentHandler {
	return &DocumentHandler{
		pipeline: p,
		margins:  margins,
	}
}

// HandleUpload ingests a multipart "file" (PDF or UTF-8 text) into the
// collection named by the "collection" form field.
func (h *DocumentHandler) HandleUpload(c *fiber.Ctx) error {
	docs, err := h.readDocuments(c)
	if err != nil {
		return err
	}

	var params types.IngestParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	res, err := h.pipeline.IngestDocuments(c.UserContext(), params.Collection, docs)
	if err != nil {
		return c.Status(statusFor(err)).JSON(res)
	}
	return c.JSON(res)
}

// HandleChunks returns the chunks an upload would produce, without embedding
// or storing anything.
func (h *DocumentHandler) HandleChunks(c *fiber.Ctx) error {
	docs, err := h.readDocuments(c)
	if err != nil {
		return err
	}

	chunks, err := h.pipeline.Preview(docs)
	if err != nil {
		return err
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	return c.JSON(texts)
}

func (h *DocumentHandler) readDocuments(c *fiber.Ctx) ([]types.Document, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return nil, ErrMissingFile()
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return extract.FromBytes(fileHeader.Filename, data, h.margins)
}
