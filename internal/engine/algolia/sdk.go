package algolia

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/algolia/algoliasearch-client-go/v3/algolia/opt"
	"github.com/algolia/algoliasearch-client-go/v3/algolia/search"

	"github.com/kailas-cloud/searchbridge/internal/engine"
)

// sdk implements api on the official client.
type sdk struct {
	client *search.Client
}

func newSDK(appID, apiKey string) *sdk {
	return &sdk{client: search.NewClient(appID, apiKey)}
}

func (s *sdk) ListIndices(ctx context.Context) error {
	_, err := s.client.ListIndices(ctx)
	return err
}

func (s *sdk) Exists(_ context.Context, index string) (bool, error) {
	return s.client.InitIndex(index).Exists()
}

func (s *sdk) SetSettings(ctx context.Context, index string, st settings) error {
	res, err := s.client.InitIndex(index).SetSettings(search.Settings{
		SearchableAttributes:  opt.SearchableAttributes(st.SearchableAttributes...),
		AttributesForFaceting: opt.AttributesForFaceting(st.AttributesForFaceting...),
	}, ctx)
	if err != nil {
		return err
	}
	return res.Wait()
}

func (s *sdk) DeleteIndex(ctx context.Context, index string) error {
	res, err := s.client.InitIndex(index).Delete(ctx)
	if err != nil {
		return err
	}
	return res.Wait()
}

func (s *sdk) SaveObjects(ctx context.Context, index string, objects []map[string]any) error {
	res, err := s.client.InitIndex(index).SaveObjects(objects, ctx)
	if err != nil {
		return err
	}
	return res.Wait()
}

func (s *sdk) DeleteObjects(ctx context.Context, index string, ids []string) error {
	res, err := s.client.InitIndex(index).DeleteObjects(ids, ctx)
	if err != nil {
		return err
	}
	return res.Wait()
}

func (s *sdk) Search(ctx context.Context, index string, q query) (queryResult, error) {
	opts := []any{
		ctx,
		opt.Page(q.Page),
		opt.HitsPerPage(q.HitsPerPage),
	}
	if q.Filters != "" {
		opts = append(opts, opt.Filters(q.Filters))
	}
	if len(q.Facets) > 0 {
		opts = append(opts, opt.Facets(q.Facets...), opt.MaxValuesPerFacet(q.MaxValuesPerFacet))
	}
	if q.AttributesToRetrieve != nil {
		opts = append(opts, opt.AttributesToRetrieve(q.AttributesToRetrieve...))
	}
	if q.AttributesToHighlight != nil {
		opts = append(opts, opt.AttributesToHighlight(q.AttributesToHighlight...))
	}
	if len(q.RestrictSearchableAttributes) > 0 {
		opts = append(opts, opt.RestrictSearchableAttributes(q.RestrictSearchableAttributes...))
	}

	res, err := s.client.InitIndex(index).Search(q.Text, opts...)
	if err != nil {
		return queryResult{}, err
	}
	return queryResult{
		Hits:             res.Hits,
		NbHits:           res.NbHits,
		ProcessingTimeMS: res.ProcessingTimeMS,
		Facets:           res.Facets,
	}, nil
}

func (s *sdk) SearchForFacetValues(ctx context.Context, index, facet, text, filters string, limit int) ([]facetHit, error) {
	opts := []any{ctx, opt.MaxFacetHits(limit)}
	if filters != "" {
		opts = append(opts, opt.Filters(filters))
	}
	res, err := s.client.InitIndex(index).SearchForFacetValues(facet, text, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]facetHit, 0, len(res.FacetHits))
	for _, h := range res.FacetHits {
		out = append(out, facetHit{Value: h.Value, Count: h.Count})
	}
	return out, nil
}

func (s *sdk) BrowseIDs(ctx context.Context, index string) ([]string, error) {
	it, err := s.client.InitIndex(index).BrowseObjects(ctx, opt.AttributesToRetrieve("objectID"))
	if err != nil {
		return nil, err
	}
	var ids []string
	for {
		obj, err := it.Next()
		if errors.Is(err, io.EOF) {
			return ids, nil
		}
		if err != nil {
			return nil, err
		}
		var row struct {
			ObjectID string `json:"objectID"`
		}
		if err := engine.Remarshal(obj, &row); err != nil {
			return nil, fmt.Errorf("decode browsed object: %w", err)
		}
		ids = append(ids, row.ObjectID)
	}
}

func (s *sdk) MoveIndex(ctx context.Context, src, dst string) error {
	res, err := s.client.MoveIndex(src, dst, ctx)
	if err != nil {
		return err
	}
	return res.Wait()
}
