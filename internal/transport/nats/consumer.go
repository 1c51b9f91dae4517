package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchbridge/internal/logger"
)

const (
	defaultAckWait    = 30 * time.Second
	defaultMaxPending = 64
)

// Config holds the JetStream subscription settings.
type Config struct {
	URL        string
	Stream     string
	Subject    string
	QueueGroup string
	Durable    string
	AckWait    time.Duration
}

// Consumer is a JetStream queue subscription feeding a Handler.
type Consumer struct {
	cfg    Config
	conn   *nats.Conn
	js     nats.JetStreamContext
	sub    *nats.Subscription
	logger *zap.Logger
}

// Connect dials NATS and opens a JetStream context.
func Connect(cfg Config, log *zap.Logger) (*Consumer, error) {
	if cfg.URL == "" || cfg.Subject == "" {
		return nil, errors.New("nats: url and subject are required")
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = defaultAckWait
	}
	if log == nil {
		log = zap.NewNop()
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("searchbridge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(3*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("nats jetstream: %w", err)
	}
	return &Consumer{cfg: cfg, conn: conn, js: js, logger: log}, nil
}

// Start ensures the stream exists (when configured) and subscribes. Each
// message runs under a context derived from ctx and bounded by the ack wait.
func (c *Consumer) Start(ctx context.Context, h *Handler) error {
	if c.cfg.Stream != "" {
		if err := c.ensureStream(); err != nil {
			return err
		}
	}

	opts := []nats.SubOpt{
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(c.cfg.AckWait),
		nats.MaxAckPending(defaultMaxPending),
	}
	if c.cfg.Durable != "" {
		opts = append(opts, nats.Durable(c.cfg.Durable))
	}

	msgLogger := c.logger.With(zap.String("subject", c.cfg.Subject))
	sub, err := c.js.QueueSubscribe(c.cfg.Subject, c.cfg.QueueGroup, func(msg *nats.Msg) {
		mctx, cancel := context.WithTimeout(ctx, c.cfg.AckWait)
		defer cancel()
		h.Handle(logger.ContextWithLogger(mctx, msgLogger), jsMessage{msg})
	}, opts...)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.cfg.Subject, err)
	}
	c.sub = sub
	c.logger.Info("Subscribed to content events",
		zap.String("subject", c.cfg.Subject),
		zap.String("queue", c.cfg.QueueGroup),
	)
	return nil
}

func (c *Consumer) ensureStream() error {
	_, err := c.js.StreamInfo(c.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", c.cfg.Stream, err)
	}
	if _, err := c.js.AddStream(&nats.StreamConfig{
		Name:     c.cfg.Stream,
		Subjects: []string{c.cfg.Subject},
	}); err != nil {
		return fmt.Errorf("create stream %s: %w", c.cfg.Stream, err)
	}
	c.logger.Info("Created JetStream stream", zap.String("stream", c.cfg.Stream))
	return nil
}

// Ping reports whether the connection is up.
func (c *Consumer) Ping(context.Context) error {
	if !c.conn.IsConnected() {
		return fmt.Errorf("nats: %s", c.conn.Status())
	}
	return nil
}

// Close drains the subscription and connection.
func (c *Consumer) Close() error {
	return c.conn.Drain()
}

type jsMessage struct{ msg *nats.Msg }

func (m jsMessage) Data() []byte { return m.msg.Data }
func (m jsMessage) Ack() error   { return m.msg.Ack() }
func (m jsMessage) Nak() error   { return m.msg.Nak() }
