package types

import (
	"errors"
	"fmt"
)

// Configuration errors are raised before any network call is made.
var (
	ErrInvalidChunkParams = errors.New("chunk size must be positive and overlap must be in [0, chunk size)")
	ErrEmptyCollection    = errors.New("collection name is required")
	ErrEmptyInput         = errors.New("input text is required")
	ErrNoContent          = errors.New("document contains no extractable text")
	ErrInvalidTopK        = errors.New("topK must be positive")
	ErrUnsupportedMetric  = errors.New("distance metric not supported by this store")
)

// ErrCollectionNotFound is returned by stores when querying or writing to a
// collection that was never created.
var ErrCollectionNotFound = errors.New("collection not found")

// Computation errors point at a data or logic bug rather than an outage.
var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrZeroVector        = errors.New("zero magnitude vector")
)

type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

func NewConfigError(err error) error {
	return &ConfigError{Err: err}
}

type ComputationError struct {
	Op  string
	Err error
}

func (e *ComputationError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *ComputationError) Unwrap() error { return e.Err }

func NewComputationError(op string, err error) error {
	return &ComputationError{Op: op, Err: err}
}

// ProviderError carries the upstream detail of a failed embedding, LLM or
// vector store call.
type ProviderError struct {
	Provider string
	Status   int
	Detail   string
	Err      error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("%s error: status %d: %s", e.Provider, e.Status, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s error: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s error: %s", e.Provider, e.Detail)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IngestError reports the chunk at which an ingestion stopped.
type IngestError struct {
	Stage string // embed, upload, collection
	Index int
	Err   error
}

func (e *IngestError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("ingestion failed at %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("ingestion failed at %s of chunk %d: %v", e.Stage, e.Index, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

func IsComputationError(err error) bool {
	var ce *ComputationError
	return errors.As(err, &ce)
}
