package engine

import (
	"context"

	"github.com/kailas-cloud/searchbridge/internal/domain/document"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/domain/index/field"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/options"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/result"
)

// SchemaBuilder turns engine-agnostic field mappings into a native schema.
type SchemaBuilder interface {
	MapFieldType(t field.Type) any
	BuildSchema(idx index.Index) map[string]any
}

// IndexManager manages index lifecycle.
type IndexManager interface {
	CreateIndex(ctx context.Context, idx index.Index) error
	DeleteIndex(ctx context.Context, handle string) error
	IndexExists(ctx context.Context, handle string) (bool, error)
}

// Writer writes and removes documents.
type Writer interface {
	UpsertDocuments(ctx context.Context, idx index.Index, docs []document.Document) error
	DeleteDocuments(ctx context.Context, idx index.Index, ids []string) error
}

// Searcher answers unified queries.
type Searcher interface {
	Search(ctx context.Context, idx index.Index, query string, opts options.Options) (result.Result, error)
	SearchFacetValues(ctx context.Context, idx index.Index, q FacetQuery) ([]result.FacetValue, error)
	CountDocuments(ctx context.Context, idx index.Index) (int, error)
	ListIDs(ctx context.Context, idx index.Index) ([]string, error)
}

// Swapper exchanges a swap generation with production.
type Swapper interface {
	SupportsAtomicSwap() bool
	SwapIndex(ctx context.Context, idx index.Index, swapHandle string) error
}

// Engine is the capability interface every backend adapter implements.
//
//nolint:interfacebloat // facade -- consumers use narrow sub-interfaces
type Engine interface {
	SchemaBuilder
	IndexManager
	Writer
	Searcher
	Swapper
	Type() index.EngineType
	Ping(ctx context.Context) error
}

// FacetQuery is a facet-value lookup: values of Field containing Query, under Filters.
type FacetQuery struct {
	Field   string
	Query   string
	Filters map[string]any
	Limit   int
}

// DefaultFacetQueryLimit caps facet-value results when no limit is given.
const DefaultFacetQueryLimit = 10

// EffectiveLimit returns Limit or the default.
func (q FacetQuery) EffectiveLimit() int {
	if q.Limit > 0 {
		return q.Limit
	}
	return DefaultFacetQueryLimit
}
