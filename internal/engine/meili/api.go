package meili

import "context"

// searchRequest mirrors the Meilisearch search body.
type searchRequest struct {
	Offset                int       `json:"offset"`
	Limit                 int       `json:"limit"`
	Filter                string    `json:"filter,omitempty"`
	Facets                []string  `json:"facets,omitempty"`
	Sort                  []string  `json:"sort,omitempty"`
	AttributesToRetrieve  []string  `json:"attributesToRetrieve,omitempty"`
	AttributesToHighlight []string  `json:"attributesToHighlight,omitempty"`
	AttributesToSearchOn  []string  `json:"attributesToSearchOn,omitempty"`
	ShowRankingScore      bool      `json:"showRankingScore"`
	Vector                []float32 `json:"vector,omitempty"`
	Hybrid                *hybrid   `json:"hybrid,omitempty"`
}

type hybrid struct {
	SemanticRatio float64 `json:"semanticRatio"`
	Embedder      string  `json:"embedder"`
}

type searchResponse struct {
	Hits               []map[string]any          `json:"hits"`
	EstimatedTotalHits int                       `json:"estimatedTotalHits"`
	TotalHits          int                       `json:"totalHits"`
	ProcessingTimeMs   int                       `json:"processingTimeMs"`
	FacetDistribution  map[string]map[string]int `json:"facetDistribution"`
}

// api is the subset of Meilisearch the adapter needs. Write calls return
// once the engine task has succeeded.
type api interface {
	Health(ctx context.Context) error
	IndexExists(ctx context.Context, uid string) (bool, error)
	CreateIndex(ctx context.Context, uid, primaryKey string) error
	DeleteIndex(ctx context.Context, uid string) error
	UpdateSettings(ctx context.Context, uid string, settings map[string]any) error
	AddDocuments(ctx context.Context, uid string, docs []map[string]any, primaryKey string) error
	DeleteDocuments(ctx context.Context, uid string, ids []string) error
	Search(ctx context.Context, uid, q string, req searchRequest) (searchResponse, error)
	DocumentIDs(ctx context.Context, uid, idField string, offset, limit int) ([]string, error)
	Count(ctx context.Context, uid string) (int, error)
	SwapIndexes(ctx context.Context, a, b string) error
}
