package engine

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/searchbridge/internal/domain/document"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/options"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/result"
)

// GetDocument is the point lookup shared by every engine: an objectID-filtered
// search whose hits are scanned for the exact id. Returns false when absent.
func GetDocument(ctx context.Context, s Searcher, idx index.Index, id string) (result.Hit, bool, error) {
	if id == "" {
		return nil, false, nil
	}
	res, err := s.Search(ctx, idx, "", options.Options{
		Page:    1,
		PerPage: 1,
		Filters: map[string]any{document.KeyID: id},
	})
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s: %w", id, err)
	}
	for _, hit := range res.Hits() {
		if IDString(hit[document.KeyID]) == id {
			return hit, true, nil
		}
	}
	return nil, false, nil
}
