// Package indexsync turns content lifecycle events and import requests into job units.
package indexsync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchbridge/internal/domain"
	"github.com/kailas-cloud/searchbridge/internal/domain/content"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/logger"
	"github.com/kailas-cloud/searchbridge/internal/queue"
)

// DefaultBatchSize is the source window of one import unit.
const DefaultBatchSize = 100

// ImportOptions controls a bulk import.
type ImportOptions struct {
	// Flush clears the production index first. Ignored for swap-capable engines.
	Flush bool
}

// Plan describes a submitted bulk generation.
type Plan struct {
	Index      string
	Generation string
	Target     string
	Total      int
	BatchSize  int
	Batches    int
	Trailer    queue.Kind
	Swap       bool
}

// Service is the sync orchestrator.
type Service struct {
	indexes   IndexRegistry
	engines   EngineProvider
	queue     Enqueuer
	source    ContentSource
	batchSize int
	now       func() time.Time
}

// New creates a sync orchestrator.
func New(indexes IndexRegistry, engines EngineProvider, q Enqueuer, source ContentSource) *Service {
	return &Service{
		indexes:   indexes,
		engines:   engines,
		queue:     q,
		source:    source,
		batchSize: DefaultBatchSize,
		now:       time.Now,
	}
}

// WithBatchSize sets the import window size.
func (s *Service) WithBatchSize(n int) *Service {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// OnSave enqueues an upsert (live item) or delete (otherwise) for every writable
// index whose scope contains the item, then re-enqueues related items.
func (s *Service) OnSave(ctx context.Context, item content.Item) error {
	live := item.IsLive(s.now())
	units := s.unitsFor(ctx, item, func(handle string) queue.Unit {
		if live {
			return queue.NewUpsert(handle, item.ID, item.SiteID)
		}
		return queue.NewDelete(handle, item.ID, item.SiteID)
	})
	if err := s.enqueue(ctx, units); err != nil {
		return err
	}
	return s.cascade(ctx, item)
}

// OnDelete enqueues a delete for every writable in-scope index, then re-enqueues related items.
func (s *Service) OnDelete(ctx context.Context, item content.Item) error {
	units := s.unitsFor(ctx, item, func(handle string) queue.Unit {
		return queue.NewDelete(handle, item.ID, item.SiteID)
	})
	if err := s.enqueue(ctx, units); err != nil {
		return err
	}
	return s.cascade(ctx, item)
}

// cascade re-enqueues upserts for items referencing the changed one; the
// executor re-resolves each and deletes those no longer live.
func (s *Service) cascade(ctx context.Context, item content.Item) error {
	related, err := s.source.RelatedTo(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("related to %s: %w", item.ID, err)
	}
	var units []queue.Unit
	for _, r := range related {
		if r.ID == item.ID {
			continue
		}
		units = append(units, s.unitsFor(ctx, r, func(handle string) queue.Unit {
			return queue.NewUpsert(handle, r.ID, r.SiteID)
		})...)
	}
	if len(units) > 0 {
		logger.FromContext(ctx).Debug("Cascading to related items",
			zap.String("item", item.ID),
			zap.Int("units", len(units)),
		)
	}
	return s.enqueue(ctx, units)
}

func (s *Service) unitsFor(ctx context.Context, item content.Item, build func(handle string) queue.Unit) []queue.Unit {
	tracker := trackerFrom(ctx)
	var units []queue.Unit
	for _, idx := range s.indexes.List() {
		if !idx.Writable() || !idx.InScope(item.SiteID, item.Category, item.Subtype) {
			continue
		}
		if !tracker.claim(idx.Handle(), item.ID, item.SiteID) {
			continue
		}
		units = append(units, build(idx.Handle()))
	}
	return units
}

func (s *Service) enqueue(ctx context.Context, units []queue.Unit) error {
	if len(units) == 0 {
		return nil
	}
	if err := s.queue.Enqueue(ctx, units...); err != nil {
		return fmt.Errorf("enqueue %d units: %w", len(units), err)
	}
	return nil
}

// Import submits one bulk generation. Swap-capable engines are populated under
// the swap handle and promoted by a trailing swap unit; other engines get the
// batches directly and a trailing orphan cleanup.
func (s *Service) Import(ctx context.Context, handle string, opts ImportOptions) (Plan, error) {
	idx, err := s.indexes.Get(handle)
	if err != nil {
		return Plan{}, err
	}
	if !idx.Enabled() {
		return Plan{}, fmt.Errorf("%s: %w", handle, domain.ErrIndexDisabled)
	}
	if idx.IsReadOnly() {
		return Plan{}, fmt.Errorf("%s: %w", handle, domain.ErrIndexReadOnly)
	}
	eng, err := s.engines.For(idx)
	if err != nil {
		return Plan{}, err
	}

	total, err := s.source.Count(ctx, idx.Scope())
	if err != nil {
		return Plan{}, fmt.Errorf("count source: %w", err)
	}

	log := logger.FromContext(ctx).With(zap.String("index", handle))
	plan := Plan{Index: handle, Total: total, BatchSize: s.batchSize, Target: handle}
	var trailer queue.Unit

	if eng.SupportsAtomicSwap() {
		swapHandle := idx.SwapHandle()
		if err := eng.DeleteIndex(ctx, swapHandle); err != nil {
			return Plan{}, fmt.Errorf("drop stale swap generation: %w", err)
		}
		if err := eng.CreateIndex(ctx, idx.WithHandle(swapHandle)); err != nil {
			return Plan{}, fmt.Errorf("create swap generation: %w", err)
		}
		plan.Swap, plan.Target = true, swapHandle
		trailer = queue.NewSwap(handle, swapHandle)
	} else {
		if opts.Flush {
			if err := eng.DeleteIndex(ctx, handle); err != nil {
				return Plan{}, fmt.Errorf("flush: %w", err)
			}
		}
		if err := eng.CreateIndex(ctx, idx); err != nil {
			return Plan{}, fmt.Errorf("ensure schema: %w", err)
		}
		trailer = queue.NewCleanup(handle)
	}

	var batches []queue.Unit
	for offset := 0; offset < total; offset += s.batchSize {
		batches = append(batches, queue.NewImportBatch(handle, targetOverride(plan), offset, s.batchSize))
	}
	gen, err := queue.NewGeneration(handle, batches, trailer)
	if err != nil {
		return Plan{}, err
	}
	if err := s.queue.SubmitGeneration(ctx, gen); err != nil {
		return Plan{}, fmt.Errorf("submit generation: %w", err)
	}

	plan.Generation, plan.Batches, plan.Trailer = gen.ID, len(batches), trailer.Kind
	if plan.Swap {
		log.Info("Sync state changed",
			zap.String("from", string(index.StateIdle)),
			zap.String("to", string(index.StatePopulating)),
			zap.String("generation", gen.ID),
		)
	}
	log.Info("Import submitted",
		zap.String("generation", gen.ID),
		zap.Int("total", total),
		zap.Int("batches", len(batches)),
		zap.String("trailer", string(trailer.Kind)),
	)
	return plan, nil
}

func targetOverride(p Plan) string {
	if p.Swap {
		return p.Target
	}
	return ""
}

// EnsureSchemas creates or updates the schema of every writable index.
func (s *Service) EnsureSchemas(ctx context.Context) error {
	for _, idx := range s.indexes.List() {
		if !idx.Writable() {
			continue
		}
		eng, err := s.engines.For(idx)
		if err != nil {
			return err
		}
		if err := eng.CreateIndex(ctx, idx); err != nil {
			return fmt.Errorf("ensure schema %s: %w", idx.Handle(), err)
		}
	}
	return nil
}
