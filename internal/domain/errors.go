package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidSchema signals an invalid index or field definition.
	ErrInvalidSchema = errors.New("invalid schema")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrIndexReadOnly signals a write against a read-only index.
	ErrIndexReadOnly = errors.New("index is read-only")
	// ErrIndexDisabled signals an operation against a disabled index.
	ErrIndexDisabled = errors.New("index is disabled")
	// ErrInvalidRequest signals malformed caller input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrEmbeddingUnavailable signals that no embedding provider is configured.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	// ErrSwapFailed signals a failed atomic index swap.
	ErrSwapFailed = errors.New("index swap failed")
)

// SwapError carries the generation that was being promoted when a swap failed.
type SwapError struct {
	Index      string
	Generation string
	Err        error
}

func (e *SwapError) Error() string {
	return fmt.Sprintf("%s: index %s generation %s: %v", ErrSwapFailed.Error(), e.Index, e.Generation, e.Err)
}

func (e *SwapError) Unwrap() []error { return []error{ErrSwapFailed, e.Err} }

// NewSwapError creates a swap failure error.
func NewSwapError(index, generation string, err error) error {
	return &SwapError{Index: index, Generation: generation, Err: err}
}
