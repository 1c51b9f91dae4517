package algolia

import "context"

// query is one Algolia search request. Nil slices leave the engine default.
type query struct {
	Text                         string
	Page                         int
	HitsPerPage                  int
	Filters                      string
	Facets                       []string
	MaxValuesPerFacet            int
	AttributesToRetrieve         []string
	AttributesToHighlight        []string
	RestrictSearchableAttributes []string
}

type queryResult struct {
	Hits             []map[string]any
	NbHits           int
	ProcessingTimeMS int
	Facets           map[string]map[string]int
}

type facetHit struct {
	Value string
	Count int
}

type settings struct {
	SearchableAttributes  []string
	AttributesForFaceting []string
}

// api is the subset of the Algolia client the adapter needs. Write calls
// return after the engine task completed.
type api interface {
	ListIndices(ctx context.Context) error
	Exists(ctx context.Context, index string) (bool, error)
	SetSettings(ctx context.Context, index string, s settings) error
	DeleteIndex(ctx context.Context, index string) error
	SaveObjects(ctx context.Context, index string, objects []map[string]any) error
	DeleteObjects(ctx context.Context, index string, ids []string) error
	Search(ctx context.Context, index string, q query) (queryResult, error)
	SearchForFacetValues(ctx context.Context, index, facet, text, filters string, limit int) ([]facetHit, error)
	BrowseIDs(ctx context.Context, index string) ([]string, error)
	MoveIndex(ctx context.Context, src, dst string) error
}
