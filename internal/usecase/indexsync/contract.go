package indexsync

import (
	"context"

	"github.com/kailas-cloud/searchbridge/internal/domain/content"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/engine"
	"github.com/kailas-cloud/searchbridge/internal/queue"
)

// IndexRegistry lists configured indexes.
type IndexRegistry interface {
	Get(handle string) (index.Index, error)
	List() []index.Index
}

// EngineProvider returns the cached engine client for an index.
type EngineProvider interface {
	For(idx index.Index) (engine.Engine, error)
}

// Enqueuer submits units to the job queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, units ...queue.Unit) error
	SubmitGeneration(ctx context.Context, gen queue.Generation) error
}

// ContentSource reads the authoritative content store.
type ContentSource interface {
	// Count returns the number of live items in scope.
	Count(ctx context.Context, scope index.Scope) (int, error)
	// RelatedTo returns items that reference id.
	RelatedTo(ctx context.Context, id string) ([]content.Item, error)
}
