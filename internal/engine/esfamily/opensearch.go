package esfamily

import (
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/opensearch-project/opensearch-go/v4"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchbridge/internal/engine"
)

// NewOpenSearch builds an adapter on the OpenSearch client.
func NewOpenSearch(cfg ClientConfig, logger *zap.Logger) (*Adapter, error) {
	addrs := cfg.addresses()
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: opensearch needs addresses", engine.ErrBadConfig)
	}
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses:  addrs,
		Username:   cfg.Username,
		Password:   cfg.Password,
		MaxRetries: cfg.MaxRetries,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec // opt-in for dev clusters
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create opensearch client: %w", err)
	}
	flavor := OpenSearch{}
	transport := NewBreakerTransport(breakerName(flavor, addrs), clientTransport{client: client}, cfg.breaker(), logger)
	return New(flavor, transport, logger, cfg.options()...), nil
}

// OpenSearchFactory adapts NewOpenSearch to the engine pool.
func OpenSearchFactory(logger *zap.Logger) engine.Factory {
	return func(raw map[string]any) (engine.Engine, error) {
		var cfg ClientConfig
		if err := engine.DecodeConfig(raw, &cfg); err != nil {
			return nil, err
		}
		return NewOpenSearch(cfg, logger)
	}
}
