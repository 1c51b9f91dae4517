package esfamily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchbridge/internal/engine"
	"github.com/kailas-cloud/searchbridge/internal/metrics"
)

// Content types used on the wire.
const (
	contentJSON   = "application/json"
	contentNDJSON = "application/x-ndjson"
)

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Body       []byte
}

// IsError reports a non-2xx status.
func (r *Response) IsError() bool { return r.StatusCode < 200 || r.StatusCode > 299 }

// Transport performs raw REST calls against an Elasticsearch-compatible cluster.
type Transport interface {
	Perform(ctx context.Context, method, path string, body []byte, contentType string) (*Response, error)
}

// performer is satisfied by both *elasticsearch.Client and *opensearch.Client.
type performer interface {
	Perform(req *http.Request) (*http.Response, error)
}

// clientTransport adapts an SDK client's Perform to Transport.
type clientTransport struct {
	client performer
}

func (t clientTransport) Perform(ctx context.Context, method, path string, body []byte, contentType string) (*Response, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", contentJSON)

	res, err := t.client.Perform(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrUnavailable, err)
	}
	defer func() { _ = res.Body.Close() }()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{StatusCode: res.StatusCode, Body: data}, nil
}

// BreakerConfig tunes the circuit breaker around a transport.
type BreakerConfig struct {
	MaxRequests  uint32        `json:"maxRequests"`
	Interval     time.Duration `json:"-"`
	Timeout      time.Duration `json:"-"`
	FailureRatio float64       `json:"failureRatio"`
	MinRequests  uint32        `json:"minRequests"`
}

// DefaultBreakerConfig returns the breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

var errServerStatus = errors.New("server error")

// breakerTransport trips on connectivity failures and 5xx responses.
type breakerTransport struct {
	inner   Transport
	breaker *gobreaker.CircuitBreaker[*Response]
}

// NewBreakerTransport wraps inner with a named circuit breaker.
func NewBreakerTransport(name string, inner Transport, cfg BreakerConfig, logger *zap.Logger) Transport {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.BreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}
	metrics.BreakerState.WithLabelValues(name).Set(0)
	return &breakerTransport{inner: inner, breaker: gobreaker.NewCircuitBreaker[*Response](settings)}
}

func (t *breakerTransport) Perform(ctx context.Context, method, path string, body []byte, contentType string) (*Response, error) {
	res, err := t.breaker.Execute(func() (*Response, error) {
		res, err := t.inner.Perform(ctx, method, path, body, contentType)
		if err != nil {
			return nil, err
		}
		if res.StatusCode >= 500 {
			return res, errServerStatus
		}
		return res, nil
	})
	if errors.Is(err, errServerStatus) {
		return res, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", engine.ErrUnavailable, err)
	}
	return res, err
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// errorResponse is the standard Elasticsearch/OpenSearch error body.
type errorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// responseError maps a failed response onto engine sentinels.
func responseError(res *Response) error {
	var er errorResponse
	detail := fmt.Sprintf("status %d", res.StatusCode)
	if err := json.Unmarshal(res.Body, &er); err == nil && er.Error.Type != "" {
		detail = er.Error.Type + ": " + er.Error.Reason
	}
	switch {
	case res.StatusCode == http.StatusNotFound && (er.Error.Type == "" || er.Error.Type == "index_not_found_exception"):
		return fmt.Errorf("%w: %s", engine.ErrIndexNotFound, detail)
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", engine.ErrUnauthorized, detail)
	case res.StatusCode >= 500:
		return fmt.Errorf("%w: %s", engine.ErrUnavailable, detail)
	default:
		return fmt.Errorf("%w: %s", engine.ErrBadResponse, detail)
	}
}
