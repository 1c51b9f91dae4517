package search

import (
	"github.com/kailas-cloud/searchbridge/internal/domain"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/engine"
)

// IndexReader resolves configured indexes by handle.
type IndexReader interface {
	Get(handle string) (index.Index, error)
}

// EngineProvider returns the cached engine client for an index.
type EngineProvider interface {
	For(idx index.Index) (engine.Engine, error)
}

// Embedder vectorizes query text. The chain behind it is bound to the query purpose.
type Embedder = domain.Embedder
