package jobs

import (
	"context"

	"github.com/kailas-cloud/searchbridge/internal/domain/content"
	"github.com/kailas-cloud/searchbridge/internal/domain/document"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/engine"
)

// IndexReader resolves index definitions by handle.
type IndexReader interface {
	Get(handle string) (index.Index, error)
}

// EngineProvider returns the cached engine client for an index.
type EngineProvider interface {
	For(idx index.Index) (engine.Engine, error)
}

// ContentSource reads the authoritative content store.
type ContentSource interface {
	// Get returns domain.ErrNotFound when the item no longer exists.
	Get(ctx context.Context, scope index.Scope, id, siteID string) (content.Item, error)
	// List returns live items in id order.
	List(ctx context.Context, scope index.Scope, offset, limit int) ([]content.Item, error)
	// IDs returns the ids of every live item.
	IDs(ctx context.Context, scope index.Scope) ([]string, error)
}

// Assembler turns a content item into an engine document.
type Assembler interface {
	Assemble(ctx context.Context, idx index.Index, item content.Item) (document.Document, error)
}

// GenerationRecorder stores the id of the generation live on an index.
type GenerationRecorder interface {
	Set(ctx context.Context, key string, value []byte) error
}
