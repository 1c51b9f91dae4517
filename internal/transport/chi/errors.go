package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchbridge/internal/domain"
	"github.com/kailas-cloud/searchbridge/internal/domain/content"
	"github.com/kailas-cloud/searchbridge/internal/logger"
)

// ErrorCode is a machine-readable error code.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest        ErrorCode = "bad_request"
	CodeUnauthorized      ErrorCode = "unauthorized"
	CodeValidationFailed  ErrorCode = "validation_failed"
	CodeIndexNotFound     ErrorCode = "index_not_found"
	CodeDocumentNotFound  ErrorCode = "document_not_found"
	CodeIndexReadOnly     ErrorCode = "index_read_only"
	CodeIndexDisabled     ErrorCode = "index_disabled"
	CodeEmbeddingError    ErrorCode = "embedding_provider_error"
	CodeEmbeddingDisabled ErrorCode = "embedding_unavailable"
	CodeSwapFailed        ErrorCode = "swap_failed"
	CodeInternalError     ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

var errorHandlers = []errorHandler{
	sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound),
	sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeIndexNotFound),
	sentinelHandler(domain.ErrIndexReadOnly, http.StatusConflict, CodeIndexReadOnly),
	sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, CodeValidationFailed),
	sentinelHandler(domain.ErrInvalidSchema, http.StatusBadRequest, CodeValidationFailed),
	sentinelHandler(content.ErrInvalidEvent, http.StatusBadRequest, CodeValidationFailed),
	sentinelHandler(domain.ErrIndexDisabled, http.StatusServiceUnavailable, CodeIndexDisabled),
	sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusServiceUnavailable, CodeEmbeddingDisabled),
	sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingError),
	sentinelHandler(domain.ErrSwapFailed, http.StatusInternalServerError, CodeSwapFailed),
}

// clientSentinels are errors whose text is safe to show to callers.
var clientSentinels = []error{
	domain.ErrDocumentNotFound,
	domain.ErrNotFound,
	domain.ErrIndexReadOnly,
	domain.ErrIndexDisabled,
	domain.ErrEmbeddingUnavailable,
	domain.ErrEmbeddingProviderError,
	domain.ErrSwapFailed,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a client message without exposing internals.
// Validation errors keep their detail since it describes the caller's input.
func safeDomainMessage(err error) string {
	if errors.Is(err, domain.ErrInvalidRequest) || errors.Is(err, domain.ErrInvalidSchema) ||
		errors.Is(err, content.ErrInvalidEvent) {
		return err.Error()
	}
	for _, s := range clientSentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
