package health

import (
	"context"

	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/engine"
)

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexLister lists configured indexes.
type IndexLister interface {
	List() []index.Index
}

// EngineProvider returns the cached engine client for an index.
type EngineProvider interface {
	For(idx index.Index) (engine.Engine, error)
}
