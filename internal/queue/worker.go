package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/searchbridge/internal/logger"
	"github.com/kailas-cloud/searchbridge/internal/metrics"
)

// Worker defaults.
const (
	DefaultConcurrency  = 4
	DefaultMaxAttempts  = 3
	DefaultRetryBackoff = time.Second
	maxRetryBackoff     = 30 * time.Second
	settleTimeout       = 5 * time.Second
)

// Job statuses reported to metrics.
const (
	statusOK      = "ok"
	statusRetry   = "retry"
	statusFailed  = "failed"
	statusSkipped = "skipped"
	statusDead    = "dead"
)

// ErrSwapSkipped is recorded for a swap trailer whose generation had failures.
var ErrSwapSkipped = errors.New("swap skipped")

// generation tracks units of one generation popped but not yet finished.
type generation struct {
	inflight int
	failed   int
}

// Worker drains a Queue. Batch and document units run concurrently up to the
// concurrency limit; a trailing unit waits until every earlier unit of its
// generation has finished.
type Worker struct {
	queue       Queue
	handler     Handler
	logger      *zap.Logger
	concurrency int
	maxAttempts int
	backoff     time.Duration

	mu    sync.Mutex
	cond  *sync.Cond
	gens  map[string]*generation
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWorker creates a worker with default limits.
func NewWorker(q Queue, h Handler, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		queue:       q,
		handler:     h,
		logger:      logger,
		concurrency: DefaultConcurrency,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultRetryBackoff,
		gens:        make(map[string]*generation),
		sleep:       sleepCtx,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// WithConcurrency sets how many units run at once.
func (w *Worker) WithConcurrency(n int) *Worker {
	if n > 0 {
		w.concurrency = n
	}
	return w
}

// WithMaxAttempts sets how many times a transient failure is tried.
func (w *Worker) WithMaxAttempts(n int) *Worker {
	if n > 0 {
		w.maxAttempts = n
	}
	return w
}

// WithRetryBackoff sets the first retry delay; it doubles per attempt.
func (w *Worker) WithRetryBackoff(d time.Duration) *Worker {
	if d > 0 {
		w.backoff = d
	}
	return w
}

// Run pops and executes units until ctx is done, then waits for in-flight
// units. Queue errors are logged and retried with backoff; Run returns only
// once ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	g := new(errgroup.Group)
	g.SetLimit(w.concurrency)
	ctx = logger.ContextWithLogger(ctx, w.logger)

	w.logger.Info("Worker started",
		zap.Int("concurrency", w.concurrency),
		zap.Int("max_attempts", w.maxAttempts),
	)
	defer w.logger.Info("Worker stopped")

	if r, ok := w.queue.(Recoverer); ok {
		if _, err := r.Recover(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("Failed to requeue unacknowledged units", zap.Error(err))
		}
	}

	delay := w.backoff
	for {
		u, err := w.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				_ = g.Wait()
				return nil
			}
			w.logger.Error("Queue pop failed, backing off", zap.Error(err), zap.Duration("backoff", delay))
			if w.sleep(ctx, delay) != nil {
				_ = g.Wait()
				return nil
			}
			delay = min(delay*2, maxRetryBackoff)
			continue
		}
		delay = w.backoff
		if n, err := w.queue.Len(ctx); err == nil {
			metrics.QueueDepth.Set(float64(n))
		}

		if u.Kind.IsTrailer() {
			g.Go(func() error {
				w.settle(ctx, u, w.runTrailer(ctx, u))
				return nil
			})
			continue
		}

		w.begin(u.Generation)
		g.Go(func() error {
			err := w.execute(ctx, u)
			w.finish(u.Generation, err == nil)
			w.settle(ctx, u, err)
			return nil
		})
	}
}

// settle acks a finished unit and parks a failed one. A unit interrupted by
// shutdown is left to the queue for redelivery.
func (w *Worker) settle(ctx context.Context, u Unit, err error) {
	if err != nil && ctx.Err() != nil {
		w.logger.Info("Job unit interrupted by shutdown", zap.String("unit", u.ID), zap.String("kind", string(u.Kind)))
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if err == nil {
		if aerr := w.queue.Ack(sctx, u); aerr != nil {
			w.logger.Error("Failed to ack job unit", zap.String("unit", u.ID), zap.Error(aerr))
		}
		return
	}
	if derr := w.queue.DeadLetter(sctx, u, err); derr != nil {
		w.logger.Error("Failed to dead-letter job unit", zap.String("unit", u.ID), zap.Error(derr))
		return
	}
	metrics.ObserveJob(string(u.Kind), statusDead, time.Now())
}

func (w *Worker) begin(gen string) {
	if gen == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.gens[gen]
	if !ok {
		st = &generation{}
		w.gens[gen] = st
	}
	st.inflight++
}

func (w *Worker) finish(gen string, ok bool) {
	if gen == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	st := w.gens[gen]
	st.inflight--
	if !ok {
		st.failed++
	}
	w.cond.Broadcast()
}

// await blocks until no unit of gen is in flight and returns how many failed.
func (w *Worker) await(gen string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.gens[gen]
	if !ok {
		return 0
	}
	for st.inflight > 0 {
		w.cond.Wait()
	}
	delete(w.gens, gen)
	return st.failed
}

func (w *Worker) runTrailer(ctx context.Context, u Unit) error {
	failed := w.await(u.Generation)
	if failed > 0 && u.Kind == KindSwap {
		metrics.ObserveJob(string(u.Kind), statusSkipped, time.Now())
		metrics.SwapFailuresTotal.WithLabelValues(u.Index).Inc()
		w.logger.Error("Swap skipped: generation has failed batches",
			zap.String("index", u.Index),
			zap.String("generation", u.Generation),
			zap.Int("failed_batches", failed),
		)
		return fmt.Errorf("%w: %d failed batches", ErrSwapSkipped, failed)
	}
	if failed > 0 {
		w.logger.Warn("Running cleanup after failed batches",
			zap.String("index", u.Index),
			zap.String("generation", u.Generation),
			zap.Int("failed_batches", failed),
		)
	}
	return w.execute(ctx, u)
}

// execute runs u with retries and returns the last error, nil on success.
func (w *Worker) execute(ctx context.Context, u Unit) error {
	delay := w.backoff
	for {
		start := time.Now()
		err := w.handler.Handle(ctx, u)
		if err == nil {
			metrics.ObserveJob(string(u.Kind), statusOK, start)
			return nil
		}

		log := w.logger.With(
			zap.String("unit", u.ID),
			zap.String("kind", string(u.Kind)),
			zap.String("index", u.Index),
			zap.Int("attempt", u.Attempt+1),
			zap.Error(err),
		)
		if IsPermanent(err) || u.Attempt+1 >= w.maxAttempts || errors.Is(err, context.Canceled) {
			metrics.ObserveJob(string(u.Kind), statusFailed, start)
			log.Error("Job unit failed")
			return err
		}

		metrics.ObserveJob(string(u.Kind), statusRetry, start)
		log.Warn("Job unit failed, retrying", zap.Duration("backoff", delay))
		if serr := w.sleep(ctx, delay); serr != nil {
			return serr
		}
		u.Attempt++
		delay = min(delay*2, maxRetryBackoff)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
