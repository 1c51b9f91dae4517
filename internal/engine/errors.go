package engine

import (
	"errors"

	"github.com/kailas-cloud/searchbridge/internal/domain/index"
)

// Sentinel errors for engine operations.
var (
	ErrNotSupported  = errors.New("engine: operation not supported")
	ErrIndexNotFound = errors.New("engine: index not found")
	ErrUnavailable   = errors.New("engine: unavailable")
	ErrUnauthorized  = errors.New("engine: unauthorized")
	ErrBadResponse   = errors.New("engine: unexpected response")
	ErrBadConfig     = errors.New("engine: invalid configuration")
)

// Op names for error context and metrics.
const (
	OpCreateIndex  = "create_index"
	OpDeleteIndex  = "delete_index"
	OpIndexExists  = "index_exists"
	OpUpsert       = "upsert"
	OpDelete       = "delete"
	OpSearch       = "search"
	OpFacetSearch  = "facet_search"
	OpCount        = "count"
	OpListIDs      = "list_ids"
	OpSwap         = "swap"
	OpPing         = "ping"
	OpUpdateSchema = "update_schema"
)

// Error wraps an underlying error with the engine and operation for diagnostics.
type Error struct {
	Engine index.EngineType
	Op     string
	Err    error
}

func (e *Error) Error() string { return string(e.Engine) + " " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Wrap returns nil for a nil err, otherwise an *Error.
func Wrap(t index.EngineType, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Engine: t, Op: op, Err: err}
}
