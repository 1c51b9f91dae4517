package chi

import (
	"context"

	"github.com/kailas-cloud/searchbridge/internal/domain/content"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/options"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/result"
	"github.com/kailas-cloud/searchbridge/internal/engine"
	healthuc "github.com/kailas-cloud/searchbridge/internal/usecase/health"
	"github.com/kailas-cloud/searchbridge/internal/usecase/indexsync"
)

// Searcher serves read operations against configured indexes.
type Searcher interface {
	Search(ctx context.Context, handle, query string, opts options.Options) (result.Result, error)
	GetDocument(ctx context.Context, handle, id string) (result.Hit, error)
	SearchFacetValues(ctx context.Context, handle string, q engine.FacetQuery) ([]result.FacetValue, error)
	Count(ctx context.Context, handle string) (int, error)
	Schema(handle string) (map[string]any, error)
}

// Syncer turns content events and import requests into job units.
type Syncer interface {
	OnSave(ctx context.Context, item content.Item) error
	OnDelete(ctx context.Context, item content.Item) error
	Import(ctx context.Context, handle string, opts indexsync.ImportOptions) (indexsync.Plan, error)
}

// IndexLister exposes configured indexes.
type IndexLister interface {
	List() []index.Index
	ForContent(siteID, category, subtype string) []index.Index
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
