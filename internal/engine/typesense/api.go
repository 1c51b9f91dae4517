package typesense

import "context"

type collectionInfo struct {
	NumDocuments int
	Fields       []string
}

type importResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type searchResult struct {
	Found        int          `json:"found"`
	SearchTimeMs int          `json:"search_time_ms"`
	Hits         []searchHit  `json:"hits"`
	FacetCounts  []facetCount `json:"facet_counts"`
}

type searchHit struct {
	Document       map[string]any `json:"document"`
	TextMatch      *float64       `json:"text_match"`
	VectorDistance *float64       `json:"vector_distance"`
	Highlights     []highlight    `json:"highlights"`
}

type highlight struct {
	Field    string   `json:"field"`
	Snippet  string   `json:"snippet"`
	Snippets []string `json:"snippets"`
}

type facetCount struct {
	FieldName string       `json:"field_name"`
	Counts    []valueCount `json:"counts"`
}

type valueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// api is the subset of Typesense the adapter needs. Schema and params travel
// as JSON-shaped maps in Typesense's own field names.
type api interface {
	Health(ctx context.Context) (bool, error)
	RetrieveCollection(ctx context.Context, name string) (collectionInfo, error)
	CreateCollection(ctx context.Context, schema map[string]any) error
	AddFields(ctx context.Context, name string, fields []map[string]any) error
	DeleteCollection(ctx context.Context, name string) error
	Import(ctx context.Context, name string, docs []map[string]any) ([]importResult, error)
	DeleteDocument(ctx context.Context, name, id string) error
	Search(ctx context.Context, name string, params map[string]any) (searchResult, error)
}
