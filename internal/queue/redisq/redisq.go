// Package redisq implements queue.Queue on a Redis list.
package redisq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchbridge/internal/db"
	"github.com/kailas-cloud/searchbridge/internal/queue"
)

// DefaultKey is the list holding pending units.
const DefaultKey = "searchbridge:jobs"

// DefaultConsumer names the processing list when none is configured.
const DefaultConsumer = "default"

const (
	defaultPollTimeout = 2 * time.Second
	processingSuffix   = ":processing:"
	deadSuffix         = ":dead"
)

// Queue stores JSON-encoded units in Redis lists. RPUSH enqueues; BLMOVE
// hands the head to this consumer's processing list, where it stays until
// Ack removes it or DeadLetter parks it under <key>:dead.
type Queue struct {
	list        db.ListStore
	key         string
	consumer    string
	pollTimeout time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	pending map[string][]byte // unit ID -> payload in the processing list
}

var _ queue.Queue = (*Queue)(nil)
var _ queue.Recoverer = (*Queue)(nil)

// New creates a Redis-backed queue.
func New(list db.ListStore, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		list:        list,
		key:         DefaultKey,
		consumer:    DefaultConsumer,
		pollTimeout: defaultPollTimeout,
		logger:      logger,
		pending:     make(map[string][]byte),
	}
}

// WithKey sets the list key.
func (q *Queue) WithKey(key string) *Queue {
	if key != "" {
		q.key = key
	}
	return q
}

// WithConsumer names this process's processing list. Names must be stable
// across restarts for Recover to find what a crashed run left behind.
func (q *Queue) WithConsumer(name string) *Queue {
	if name != "" {
		q.consumer = name
	}
	return q
}

// WithPollTimeout sets how long one BLMOVE waits before re-checking ctx.
func (q *Queue) WithPollTimeout(d time.Duration) *Queue {
	if d > 0 {
		q.pollTimeout = d
	}
	return q
}

// ProcessingKey returns the list holding units this consumer has popped.
func (q *Queue) ProcessingKey() string { return q.key + processingSuffix + q.consumer }

// DeadKey returns the dead-letter list.
func (q *Queue) DeadKey() string { return q.key + deadSuffix }

func (q *Queue) push(ctx context.Context, units []queue.Unit) error {
	if len(units) == 0 {
		return nil
	}
	payloads := make([][]byte, 0, len(units))
	for _, u := range units {
		if err := u.Validate(); err != nil {
			return err
		}
		b, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("encode unit %s: %w", u.ID, err)
		}
		payloads = append(payloads, b)
	}
	if err := q.list.RPush(ctx, q.key, payloads...); err != nil {
		return fmt.Errorf("enqueue %d units: %w", len(units), err)
	}
	queue.ObserveEnqueued(units)
	return nil
}

// Enqueue appends units with a single RPUSH.
func (q *Queue) Enqueue(ctx context.Context, units ...queue.Unit) error {
	return q.push(ctx, units)
}

// SubmitGeneration appends batches and trailer with a single RPUSH.
func (q *Queue) SubmitGeneration(ctx context.Context, gen queue.Generation) error {
	return q.push(ctx, gen.Units())
}

// Pop waits for the next unit and moves it to the processing list.
// Malformed entries are parked on the dead-letter list.
func (q *Queue) Pop(ctx context.Context) (queue.Unit, error) {
	for {
		if err := ctx.Err(); err != nil {
			return queue.Unit{}, err
		}
		data, err := q.list.BLMove(ctx, q.key, q.ProcessingKey(), q.pollTimeout)
		if errors.Is(err, db.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return queue.Unit{}, ctx.Err()
			}
			return queue.Unit{}, fmt.Errorf("dequeue: %w", err)
		}

		var u queue.Unit
		if err := json.Unmarshal(data, &u); err != nil || u.ID == "" {
			q.logger.Error("Parking malformed job unit", zap.Error(err), zap.ByteString("payload", data))
			q.park(ctx, data)
			continue
		}
		q.mu.Lock()
		q.pending[u.ID] = data
		q.mu.Unlock()
		return u, nil
	}
}

func (q *Queue) park(ctx context.Context, data []byte) {
	if err := q.list.RPush(ctx, q.DeadKey(), data); err != nil {
		q.logger.Error("Failed to park job unit", zap.Error(err))
		return
	}
	if _, err := q.list.LRem(ctx, q.ProcessingKey(), data); err != nil {
		q.logger.Error("Failed to release job unit", zap.Error(err))
	}
}

func (q *Queue) take(id string) ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	data, ok := q.pending[id]
	delete(q.pending, id)
	return data, ok
}

// Ack removes a finished unit from the processing list.
func (q *Queue) Ack(ctx context.Context, u queue.Unit) error {
	data, ok := q.take(u.ID)
	if !ok {
		return nil
	}
	removed, err := q.list.LRem(ctx, q.ProcessingKey(), data)
	if err != nil {
		q.restore(u.ID, data)
		return fmt.Errorf("ack unit %s: %w", u.ID, err)
	}
	if !removed {
		q.logger.Warn("Acked unit missing from processing list", zap.String("unit", u.ID))
	}
	return nil
}

// DeadLetter appends u and its cause to the dead-letter list, then releases
// it from the processing list.
func (q *Queue) DeadLetter(ctx context.Context, u queue.Unit, cause error) error {
	record, err := json.Marshal(queue.NewDeadUnit(u, cause))
	if err != nil {
		return fmt.Errorf("encode dead unit %s: %w", u.ID, err)
	}
	if err := q.list.RPush(ctx, q.DeadKey(), record); err != nil {
		return fmt.Errorf("dead-letter unit %s: %w", u.ID, err)
	}
	data, ok := q.take(u.ID)
	if !ok {
		return nil
	}
	if _, err := q.list.LRem(ctx, q.ProcessingKey(), data); err != nil {
		q.restore(u.ID, data)
		return fmt.Errorf("release unit %s: %w", u.ID, err)
	}
	return nil
}

func (q *Queue) restore(id string, data []byte) {
	q.mu.Lock()
	q.pending[id] = data
	q.mu.Unlock()
}

// Recover moves every unit left on this consumer's processing list back to
// the head of the pending list, oldest first. Call it before the first Pop.
func (q *Queue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		_, err := q.list.LMove(ctx, q.ProcessingKey(), q.key)
		if errors.Is(err, db.ErrKeyNotFound) {
			if n > 0 {
				q.logger.Warn("Requeued unacknowledged job units",
					zap.String("consumer", q.consumer),
					zap.Int("units", n),
				)
			}
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("recover processing list: %w", err)
		}
		n++
	}
}

// Len returns the list length.
func (q *Queue) Len(ctx context.Context) (int, error) {
	n, err := q.list.LLen(ctx, q.key)
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return int(n), nil
}
