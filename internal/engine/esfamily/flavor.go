package esfamily

import "github.com/kailas-cloud/searchbridge/internal/domain/index"

// DefaultVectorDim is used when an index does not declare its embedding size.
const DefaultVectorDim = 1536

// VectorQuery is a resolved kNN request.
type VectorQuery struct {
	Field   string
	Vector  []float32
	K       int
	Filters []any
	// HasText is true when a full-text clause runs alongside the vector.
	HasText bool
}

// Flavor captures what differs between Elasticsearch and OpenSearch.
type Flavor interface {
	Type() index.EngineType
	VectorMapping(dims int) map[string]any
	IndexSettings(hasVector bool) map[string]any
	// ApplyVector places the kNN clause into a search body whose query is a bool query.
	ApplyVector(body, boolQuery map[string]any, v VectorQuery)
}

// Elasticsearch is the Elasticsearch 8.x flavor.
type Elasticsearch struct{}

func (Elasticsearch) Type() index.EngineType { return index.Elasticsearch }

func (Elasticsearch) VectorMapping(dims int) map[string]any {
	return map[string]any{
		"type":       "dense_vector",
		"dims":       dims,
		"index":      true,
		"similarity": "cosine",
	}
}

func (Elasticsearch) IndexSettings(bool) map[string]any { return nil }

// ApplyVector uses the top-level knn section. Without text the query section is
// dropped so only neighbours are returned; filters move into the knn section.
func (Elasticsearch) ApplyVector(body, _ map[string]any, v VectorQuery) {
	knn := map[string]any{
		"field":          v.Field,
		"query_vector":   v.Vector,
		"k":              v.K,
		"num_candidates": max(v.K*10, 100),
	}
	if len(v.Filters) > 0 {
		knn["filter"] = v.Filters
	}
	body["knn"] = knn
	if !v.HasText {
		delete(body, "query")
	}
}

// OpenSearch is the OpenSearch 2.x flavor (k-NN plugin).
type OpenSearch struct{}

func (OpenSearch) Type() index.EngineType { return index.OpenSearch }

func (OpenSearch) VectorMapping(dims int) map[string]any {
	return map[string]any{
		"type":      "knn_vector",
		"dimension": dims,
		"method": map[string]any{
			"name":       "hnsw",
			"space_type": "cosinesimil",
			"engine":     "lucene",
		},
	}
}

func (OpenSearch) IndexSettings(hasVector bool) map[string]any {
	if !hasVector {
		return nil
	}
	return map[string]any{"index": map[string]any{"knn": true}}
}

// ApplyVector puts a knn clause in the bool query. With text, text and vector
// become alternatives (should, minimum one).
func (OpenSearch) ApplyVector(_, boolQuery map[string]any, v VectorQuery) {
	knn := map[string]any{
		"knn": map[string]any{
			v.Field: map[string]any{"vector": v.Vector, "k": v.K},
		},
	}
	if !v.HasText {
		boolQuery["must"] = []any{knn}
		return
	}
	must, _ := boolQuery["must"].([]any)
	boolQuery["should"] = append(must, knn)
	boolQuery["minimum_should_match"] = 1
	delete(boolQuery, "must")
}
