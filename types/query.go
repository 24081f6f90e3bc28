package types

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

type Validater interface {
	Validate() map[string]string
}

var validate = validator.New()

type IngestParams struct {
	Collection string `json:"collection" form:"collection" validate:"required"`
}

type EmbeddingsParams struct {
	Collection string   `json:"collection" validate:"required"`
	Entries    []string `json:"entries" validate:"required,min=1,dive,required"`
}

type SearchParams struct {
	Collection string `json:"collection" validate:"required"`
	InputText  string `json:"input_text" validate:"required"`
	TopK       int    `json:"top_k" validate:"omitempty,min=1,max=100"`
}

type EmbeddingParams struct {
	InputText string `query:"input_text" validate:"required"`
}

type ChatParams struct {
	Prompt string `query:"prompt" validate:"required"`
}

func Validate(v Validater) map[string]string {
	return v.Validate()
}

func (params *IngestParams) Validate() map[string]string     { return validateStruct(params) }
func (params *EmbeddingsParams) Validate() map[string]string { return validateStruct(params) }
func (params *SearchParams) Validate() map[string]string     { return validateStruct(params) }
func (params *EmbeddingParams) Validate() map[string]string  { return validateStruct(params) }
func (params *ChatParams) Validate() map[string]string       { return validateStruct(params) }

func validateStruct(s any) map[string]string {
	if err := validate.Struct(s); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"request": err.Error()}
		}
		errors := make(map[string]string)
		for _, e := range errs {
			errors[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return errors
	}
	return nil
}
