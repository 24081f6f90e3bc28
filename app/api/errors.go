package api

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"ragbridge/app/middleware"
	"ragbridge/types"
)

// ErrorHandler renders every error returned by a handler as JSON. Domain
// errors are mapped by kind: configuration 400, unknown collection 404,
// provider 502, request deadline 504, everything else 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var (
		apiErr Error
		valErr ValidationError
		fibErr *fiber.Error
	)
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &valErr):
		return c.Status(valErr.Status).JSON(valErr)
	case errors.As(err, &fibErr):
		apiErr = NewError(fibErr.Code, fibErr.Message)
	default:
		apiErr = NewError(statusFor(err), err.Error())
	}

	log := slog.Default().With("method", c.Method(), "path", c.Path(), "code", apiErr.Code)
	if id, ok := c.Locals(middleware.RequestIDKey).(string); ok {
		log = log.With("request_id", id)
	}
	if apiErr.Code >= fiber.StatusInternalServerError {
		log.Error("request failed", "err", apiErr.Message)
	} else {
		log.Warn("request rejected", "err", apiErr.Message)
	}
	return c.Status(apiErr.Code).JSON(apiErr)
}

func statusFor(err error) int {
	switch {
	case types.IsConfigError(err):
		return fiber.StatusBadRequest
	case errors.Is(err, types.ErrCollectionNotFound):
		return fiber.StatusNotFound
	case types.IsProviderError(err):
		return fiber.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	}
	return fiber.StatusInternalServerError
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

type ValidationError struct {
	Status int               `json:"status"`
	Errors map[string]string `json:"errors"`
}

func (e ValidationError) Error() string {
	return "validation failed"
}

func NewValidationError(errors map[string]string) ValidationError {
	return ValidationError{
		Status: fiber.StatusUnprocessableEntity,
		Errors: errors,
	}
}

// Error implements the Error interface
func (e Error) Error() string {
	return e.Message
}

func NewError(code int, err string) Error {
	return Error{
		Code:    code,
		Message: err,
	}
}

func ErrBadRequest() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "invalid JSON request",
	}
}

func ErrMissingFile() Error {
	return Error{
		Code:    fiber.StatusBadRequest,
		Message: "multipart field 'file' is required",
	}
}
