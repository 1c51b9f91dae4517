package esfamily

import (
	"fmt"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"go.uber.org/zap"

	"github.com/kailas-cloud/searchbridge/internal/engine"
)

// ClientConfig is the opaque per-index engine configuration for both flavors.
type ClientConfig struct {
	Addresses []string `json:"addresses"`
	URL       string   `json:"url"`
	Username  string   `json:"username"`
	Password  string   `json:"password"`
	APIKey    string   `json:"apiKey"`
	CloudID   string   `json:"cloudId"`
	// InsecureSkipVerify disables TLS verification (OpenSearch dev clusters).
	InsecureSkipVerify bool `json:"insecureSkipVerify"`
	MaxRetries         int  `json:"maxRetries"`
	// BreakerTimeoutSec is how long the breaker stays open.
	BreakerTimeoutSec int     `json:"breakerTimeoutSec"`
	FailureRatio      float64 `json:"failureRatio"`
	ScanSize          int     `json:"scanSize"`
	BulkChunk         int     `json:"bulkChunk"`
}

func (c ClientConfig) addresses() []string {
	if len(c.Addresses) > 0 {
		return c.Addresses
	}
	if c.URL != "" {
		return []string{c.URL}
	}
	return nil
}

func (c ClientConfig) breaker() BreakerConfig {
	bc := DefaultBreakerConfig()
	if c.BreakerTimeoutSec > 0 {
		bc.Timeout = time.Duration(c.BreakerTimeoutSec) * time.Second
	}
	if c.FailureRatio > 0 {
		bc.FailureRatio = c.FailureRatio
	}
	return bc
}

func (c ClientConfig) options() []Option {
	return []Option{WithScanSize(c.ScanSize), WithBulkChunk(c.BulkChunk)}
}

func breakerName(flavor Flavor, addrs []string) string {
	return string(flavor.Type()) + ":" + strings.Join(addrs, ",")
}

// NewElasticsearch builds an adapter on the official Elasticsearch client.
func NewElasticsearch(cfg ClientConfig, logger *zap.Logger) (*Adapter, error) {
	addrs := cfg.addresses()
	if len(addrs) == 0 && cfg.CloudID == "" {
		return nil, fmt.Errorf("%w: elasticsearch needs addresses or cloudId", engine.ErrBadConfig)
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:  addrs,
		Username:   cfg.Username,
		Password:   cfg.Password,
		APIKey:     cfg.APIKey,
		CloudID:    cfg.CloudID,
		MaxRetries: cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	flavor := Elasticsearch{}
	transport := NewBreakerTransport(breakerName(flavor, addrs), clientTransport{client: client}, cfg.breaker(), logger)
	return New(flavor, transport, logger, cfg.options()...), nil
}

// ElasticsearchFactory adapts NewElasticsearch to the engine pool.
func ElasticsearchFactory(logger *zap.Logger) engine.Factory {
	return func(raw map[string]any) (engine.Engine, error) {
		var cfg ClientConfig
		if err := engine.DecodeConfig(raw, &cfg); err != nil {
			return nil, err
		}
		return NewElasticsearch(cfg, logger)
	}
}
