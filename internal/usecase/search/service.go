package search

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchbridge/internal/domain"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/options"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/result"
	"github.com/kailas-cloud/searchbridge/internal/engine"
	"github.com/kailas-cloud/searchbridge/internal/logger"
)

// Service answers unified queries against whichever engine backs an index.
type Service struct {
	indexes IndexReader
	engines EngineProvider
	embed   Embedder
}

// New creates a search service. embed may be nil: vector requests then fall back to keyword search.
func New(indexes IndexReader, engines EngineProvider, embed Embedder) *Service {
	return &Service{indexes: indexes, engines: engines, embed: embed}
}

// Search runs query against the index. Engine failures are reported in the
// result (success false) rather than as an error.
func (s *Service) Search(
	ctx context.Context, handle, query string, opts options.Options,
) (result.Result, error) {
	idx, eng, err := s.resolve(handle)
	if err != nil {
		return result.Result{}, err
	}
	if len(query) > options.MaxQueryLength {
		return result.Result{}, fmt.Errorf("%w: query exceeds %d bytes",
			domain.ErrInvalidRequest, options.MaxQueryLength)
	}

	opts = s.prepareVector(ctx, idx, query, opts)
	page := opts.Pagination(options.DefaultPerPage)

	res, err := eng.Search(ctx, idx, query, opts)
	if err != nil {
		logger.FromContext(ctx).Warn("Search failed",
			zap.String("index", handle),
			zap.String("engine", string(idx.EngineType())),
			zap.Error(err),
		)
		return result.Failed(err.Error(), page.Page, page.PerPage), nil
	}
	return res, nil
}

// prepareVector fills in the vector field and query embedding when vector search
// is requested without a ready vector. Any failure degrades to keyword search.
func (s *Service) prepareVector(
	ctx context.Context, idx index.Index, query string, opts options.Options,
) options.Options {
	if !opts.WantsVector() || opts.HasVector() {
		return opts
	}
	vec := *opts.Vector
	log := logger.FromContext(ctx).With(zap.String("index", idx.Handle()))

	if vec.Field == "" {
		f, ok := idx.EmbeddingField()
		if !ok {
			log.Debug("No embedding field, using keyword search")
			return withoutVector(opts)
		}
		vec.Field = f
	}
	if len(vec.Vector) == 0 {
		if s.embed == nil || query == "" {
			return withoutVector(opts)
		}
		emb, err := s.embed.Embed(ctx, query)
		if err != nil {
			log.Warn("Query embedding failed, using keyword search", zap.Error(err))
			return withoutVector(opts)
		}
		vec.Vector = emb.Embedding
	}
	opts.Vector = &vec
	return opts
}

func withoutVector(opts options.Options) options.Options {
	opts.Vector = nil
	return opts
}

// GetDocument returns the stored document with id.
func (s *Service) GetDocument(ctx context.Context, handle, id string) (result.Hit, error) {
	idx, eng, err := s.resolve(handle)
	if err != nil {
		return nil, err
	}
	hit, ok, err := engine.GetDocument(ctx, eng, idx, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	return hit, nil
}

// SearchFacetValues returns values of a facet field matching q.Query.
func (s *Service) SearchFacetValues(
	ctx context.Context, handle string, q engine.FacetQuery,
) ([]result.FacetValue, error) {
	idx, eng, err := s.resolve(handle)
	if err != nil {
		return nil, err
	}
	if _, ok := idx.FieldType(q.Field); !ok {
		return nil, fmt.Errorf("%w: unknown facet field %q", domain.ErrInvalidRequest, q.Field)
	}
	values, err := eng.SearchFacetValues(ctx, idx, q)
	if err != nil {
		return nil, fmt.Errorf("search facet values: %w", err)
	}
	return values, nil
}

// Count returns the number of documents in the index.
func (s *Service) Count(ctx context.Context, handle string) (int, error) {
	idx, eng, err := s.resolve(handle)
	if err != nil {
		return 0, err
	}
	n, err := eng.CountDocuments(ctx, idx)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// Schema returns the engine-native schema built from the index mappings.
func (s *Service) Schema(handle string) (map[string]any, error) {
	idx, err := s.indexes.Get(handle)
	if err != nil {
		return nil, fmt.Errorf("get index: %w", err)
	}
	eng, err := s.engines.For(idx)
	if err != nil {
		return nil, fmt.Errorf("engine for %s: %w", handle, err)
	}
	return eng.BuildSchema(idx), nil
}

func (s *Service) resolve(handle string) (index.Index, engine.Engine, error) {
	idx, err := s.indexes.Get(handle)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return index.Index{}, nil, fmt.Errorf("index %s: %w", handle, err)
		}
		return index.Index{}, nil, fmt.Errorf("get index: %w", err)
	}
	if !idx.Enabled() {
		return index.Index{}, nil, fmt.Errorf("index %s: %w", handle, domain.ErrIndexDisabled)
	}
	eng, err := s.engines.For(idx)
	if err != nil {
		return index.Index{}, nil, fmt.Errorf("engine for %s: %w", handle, err)
	}
	return idx, eng, nil
}
