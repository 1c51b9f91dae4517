// Package jobs executes queued units against the engines. Every handler is idempotent.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchbridge/internal/domain"
	dombatch "github.com/kailas-cloud/searchbridge/internal/domain/batch"
	"github.com/kailas-cloud/searchbridge/internal/domain/content"
	"github.com/kailas-cloud/searchbridge/internal/domain/document"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/engine"
	"github.com/kailas-cloud/searchbridge/internal/logger"
	"github.com/kailas-cloud/searchbridge/internal/metrics"
	"github.com/kailas-cloud/searchbridge/internal/queue"
)

// DefaultCleanupChunk is how many orphan ids go into one delete request.
const DefaultCleanupChunk = 500

// LiveGenerationKey is the KV key holding the generation live on an index.
func LiveGenerationKey(handle string) string { return "searchbridge:live:" + handle }

// Service implements queue.Handler.
type Service struct {
	indexes      IndexReader
	engines      EngineProvider
	source       ContentSource
	assembler    Assembler
	generations  GenerationRecorder
	cleanupChunk int
	now          func() time.Time
}

var _ queue.Handler = (*Service)(nil)

// New creates a job executor.
func New(indexes IndexReader, engines EngineProvider, source ContentSource, assembler Assembler) *Service {
	return &Service{
		indexes:      indexes,
		engines:      engines,
		source:       source,
		assembler:    assembler,
		cleanupChunk: DefaultCleanupChunk,
		now:          time.Now,
	}
}

// WithGenerationRecorder records the live generation after every successful swap.
func (s *Service) WithGenerationRecorder(r GenerationRecorder) *Service {
	s.generations = r
	return s
}

// WithCleanupChunk sets the orphan delete chunk size.
func (s *Service) WithCleanupChunk(n int) *Service {
	if n > 0 {
		s.cleanupChunk = n
	}
	return s
}

// Handle dispatches a unit by kind.
func (s *Service) Handle(ctx context.Context, u queue.Unit) error {
	if err := u.Validate(); err != nil {
		return queue.Permanent(fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err))
	}
	idx, err := s.indexes.Get(u.Index)
	if err != nil {
		return queue.Permanent(fmt.Errorf("index %s: %w", u.Index, err))
	}
	if !idx.Writable() {
		logger.FromContext(ctx).Debug("Skipping unit for non-writable index",
			zap.String("index", u.Index),
			zap.String("kind", string(u.Kind)),
		)
		return nil
	}
	eng, err := s.engines.For(idx)
	if err != nil {
		return queue.Permanent(err)
	}

	switch u.Kind {
	case queue.KindUpsert:
		return s.upsert(ctx, eng, idx, u)
	case queue.KindDelete:
		return s.remove(ctx, eng, idx, u.DocumentID)
	case queue.KindImport:
		return s.importBatch(ctx, eng, idx, u)
	case queue.KindCleanup:
		return s.cleanup(ctx, eng, idx)
	case queue.KindSwap:
		return s.swap(ctx, eng, idx, u)
	default:
		return queue.Permanent(fmt.Errorf("unknown unit kind %q", u.Kind))
	}
}

// upsert re-reads the item and writes it, or deletes it when it is gone or no longer live.
func (s *Service) upsert(ctx context.Context, eng engine.Engine, idx index.Index, u queue.Unit) error {
	item, err := s.source.Get(ctx, idx.Scope(), u.DocumentID, u.SiteID)
	if errors.Is(err, domain.ErrNotFound) {
		return s.remove(ctx, eng, idx, u.DocumentID)
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", u.DocumentID, err)
	}
	if !s.belongs(idx, item) {
		return s.remove(ctx, eng, idx, u.DocumentID)
	}

	doc, err := s.assembler.Assemble(ctx, idx, item)
	if err != nil {
		return fmt.Errorf("assemble %s: %w", u.DocumentID, err)
	}
	if err := eng.UpsertDocuments(ctx, idx, []document.Document{doc}); err != nil {
		return fmt.Errorf("upsert %s: %w", u.DocumentID, err)
	}
	return nil
}

func (s *Service) belongs(idx index.Index, item content.Item) bool {
	return item.IsLive(s.now()) && idx.InScope(item.SiteID, item.Category, item.Subtype)
}

func (s *Service) remove(ctx context.Context, eng engine.Engine, idx index.Index, id string) error {
	if err := eng.DeleteDocuments(ctx, idx, []string{id}); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}

// importBatch writes one source window into the unit's target handle.
func (s *Service) importBatch(ctx context.Context, eng engine.Engine, idx index.Index, u queue.Unit) error {
	target := idx.WithHandle(u.TargetHandle())
	items, err := s.source.List(ctx, idx.Scope(), u.Offset, u.Limit)
	if err != nil {
		return fmt.Errorf("list %d+%d: %w", u.Offset, u.Limit, err)
	}

	results := make([]dombatch.Result, 0, len(items))
	docs := make([]document.Document, 0, len(items))
	for _, item := range items {
		if !s.belongs(idx, item) {
			results = append(results, dombatch.NewSkipped(item.ID))
			continue
		}
		doc, err := s.assembler.Assemble(ctx, idx, item)
		if err != nil {
			results = append(results, dombatch.NewError(item.ID, err))
			continue
		}
		docs = append(docs, doc)
	}

	if len(docs) > 0 {
		if err := eng.UpsertDocuments(ctx, target, docs); err != nil {
			return fmt.Errorf("import %d+%d into %s: %w", u.Offset, u.Limit, target.Handle(), err)
		}
	}
	for _, d := range docs {
		results = append(results, dombatch.NewIndexed(d.ID()))
	}

	sum := dombatch.Summarize(results)
	logger.FromContext(ctx).Info("Import batch done",
		zap.String("index", idx.Handle()),
		zap.String("target", target.Handle()),
		zap.String("generation", u.Generation),
		zap.Int("offset", u.Offset),
		zap.Int("indexed", sum.Indexed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
	)
	return nil
}

// cleanup deletes every engine document whose id is absent from the source.
func (s *Service) cleanup(ctx context.Context, eng engine.Engine, idx index.Index) error {
	engineIDs, err := eng.ListIDs(ctx, idx)
	if err != nil {
		return fmt.Errorf("list engine ids: %w", err)
	}
	sourceIDs, err := s.source.IDs(ctx, idx.Scope())
	if err != nil {
		return fmt.Errorf("list source ids: %w", err)
	}

	orphans := engine.Orphans(engineIDs, sourceIDs)
	for _, chunk := range engine.Chunk(orphans, s.cleanupChunk) {
		if err := eng.DeleteDocuments(ctx, idx, chunk); err != nil {
			return fmt.Errorf("delete orphans: %w", err)
		}
	}
	logger.FromContext(ctx).Info("Orphan cleanup done",
		zap.String("index", idx.Handle()),
		zap.Int("engine_docs", len(engineIDs)),
		zap.Int("deleted", len(orphans)),
	)
	return nil
}

// swap promotes the unit's target generation. A failed swap is never retried:
// the engine state after a partial swap cannot be told apart from a completed one.
func (s *Service) swap(ctx context.Context, eng engine.Engine, idx index.Index, u queue.Unit) error {
	log := logger.FromContext(ctx).With(
		zap.String("index", idx.Handle()),
		zap.String("generation", u.Generation),
	)
	if !eng.SupportsAtomicSwap() {
		return queue.Permanent(engine.Wrap(eng.Type(), engine.OpSwap, engine.ErrNotSupported))
	}

	if err := eng.SwapIndex(ctx, idx, u.Target); err != nil {
		metrics.SwapFailuresTotal.WithLabelValues(idx.Handle()).Inc()
		log.Error("Index swap failed", zap.String("swap", u.Target), zap.Error(err))
		return queue.Permanent(domain.NewSwapError(idx.Handle(), u.Generation, err))
	}

	logTransition(log, index.StatePopulating, index.StateSwapped)

	count, err := eng.CountDocuments(ctx, idx)
	if err != nil {
		log.Warn("Swap read-back failed", zap.Error(err))
	} else {
		log.Info("Index swapped", zap.Int("live_documents", count))
	}

	if s.generations != nil {
		if err := s.generations.Set(ctx, LiveGenerationKey(idx.Handle()), []byte(u.Generation)); err != nil {
			log.Warn("Failed to record live generation", zap.Error(err))
		}
	}
	logTransition(log, index.StateSwapped, index.StateIdle)
	return nil
}

func logTransition(log *zap.Logger, from, to index.SyncState) {
	log.Info("Sync state changed", zap.String("from", string(from)), zap.String("to", string(to)))
}
