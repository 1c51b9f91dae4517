package queue

import (
	"context"
	"errors"
	"time"

	"github.com/kailas-cloud/searchbridge/internal/metrics"
)

// Queue is a durable FIFO of units.
type Queue interface {
	Enqueue(ctx context.Context, units ...Unit) error
	// SubmitGeneration enqueues every unit of gen at once; the trailer is never
	// visible to consumers before its batches.
	SubmitGeneration(ctx context.Context, gen Generation) error
	// Pop blocks until a unit is available or ctx is done. A popped unit stays
	// owned by the queue until Ack or DeadLetter.
	Pop(ctx context.Context) (Unit, error)
	// Ack forgets a unit that finished.
	Ack(ctx context.Context, u Unit) error
	// DeadLetter parks a unit that will not be retried.
	DeadLetter(ctx context.Context, u Unit, cause error) error
	Len(ctx context.Context) (int, error)
}

// Recoverer is implemented by queues that can hand back units popped by a
// previous run but never acknowledged.
type Recoverer interface {
	Recover(ctx context.Context) (int, error)
}

// DeadUnit is a unit parked after its final failure.
type DeadUnit struct {
	Unit     Unit      `json:"unit"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failedAt"`
}

// NewDeadUnit records u with the error that ended it.
func NewDeadUnit(u Unit, cause error) DeadUnit {
	d := DeadUnit{Unit: u, FailedAt: time.Now().UTC()}
	if cause != nil {
		d.Error = cause.Error()
	}
	return d
}

// Handler executes one unit.
type Handler interface {
	Handle(ctx context.Context, u Unit) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, u Unit) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, u Unit) error { return f(ctx, u) }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// ObserveEnqueued counts enqueued units per kind.
func ObserveEnqueued(units []Unit) {
	for _, u := range units {
		metrics.JobsEnqueuedTotal.WithLabelValues(string(u.Kind)).Inc()
	}
}
