// Package nats consumes content lifecycle events from a JetStream subject.
package nats

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchbridge/internal/domain/content"
	"github.com/kailas-cloud/searchbridge/internal/logger"
	"github.com/kailas-cloud/searchbridge/internal/usecase/indexsync"
)

// Syncer receives decoded content events.
type Syncer interface {
	OnSave(ctx context.Context, item content.Item) error
	OnDelete(ctx context.Context, item content.Item) error
}

// Message is the acknowledgement surface of a delivered message.
type Message interface {
	Data() []byte
	Ack() error
	Nak() error
}

// Outcome of handling one message.
type Outcome string

// Outcomes.
const (
	OutcomeAcked   Outcome = "acked"
	OutcomeDropped Outcome = "dropped"
	OutcomeNacked  Outcome = "nacked"
)

// Handler turns messages into sync orchestrator calls.
type Handler struct {
	sync Syncer
}

// NewHandler creates a message handler.
func NewHandler(sync Syncer) *Handler {
	return &Handler{sync: sync}
}

// Handle processes one message. Every message is its own triggering request
// with a fresh dedup tracker. Malformed payloads are acked so they are not
// redelivered; orchestrator errors nack for redelivery.
func (h *Handler) Handle(ctx context.Context, msg Message) Outcome {
	log := logger.FromContext(ctx)

	ev, err := decode(msg.Data())
	if err != nil {
		log.Warn("Dropping malformed content event", zap.Error(err))
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error("Failed to ack message", zap.Error(ackErr))
		}
		return OutcomeDropped
	}

	ctx, log = logger.With(ctx, zap.String("event", string(ev.Type)), zap.String("item", ev.Item.ID))
	ctx = indexsync.WithTracker(ctx)

	switch ev.Type {
	case content.EventSave:
		err = h.sync.OnSave(ctx, ev.Item)
	case content.EventDelete:
		err = h.sync.OnDelete(ctx, ev.Item)
	}
	if err != nil {
		log.Error("Content event failed, nacking", zap.Error(err))
		if nakErr := msg.Nak(); nakErr != nil {
			log.Error("Failed to nack message", zap.Error(nakErr))
		}
		return OutcomeNacked
	}

	if err := msg.Ack(); err != nil {
		log.Error("Failed to ack message", zap.Error(err))
	}
	log.Debug("Content event handled", zap.Int("units", indexsync.TrackedUnits(ctx)))
	return OutcomeAcked
}

func decode(data []byte) (content.Event, error) {
	if len(data) == 0 {
		return content.Event{}, errors.New("empty payload")
	}
	var ev content.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return content.Event{}, err
	}
	if err := ev.Validate(); err != nil {
		return content.Event{}, err
	}
	return ev, nil
}
