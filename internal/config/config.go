package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/searchbridge/internal/domain"
)

// Config holds the searchbridge service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DatabaseConfig  `yaml:"database"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Queue     QueueConfig     `yaml:"queue"`
	Sync      SyncConfig      `yaml:"sync"`
	Search    SearchConfig    `yaml:"search"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	NATS      NATSConfig      `yaml:"nats"`
	Indexes   []IndexConfig   `yaml:"indexes"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	// APIKeys enables Bearer authentication when non-empty.
	APIKeys []string `yaml:"api_keys"`
}

// DatabaseConfig holds the Redis-compatible store settings (embedding cache, job queue).
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// PostgresConfig holds the content store connection settings.
type PostgresConfig struct {
	DSN             string `yaml:"dsn"`
	MaxConns        int32  `yaml:"max_conns"`
	MinConns        int32  `yaml:"min_conns"`
	ConnectAttempts int    `yaml:"connect_attempts"`
}

// Queue drivers.
const (
	QueueDriverRedis  = "redis"
	QueueDriverMemory = "memory"
)

// QueueConfig holds job queue and worker settings.
type QueueConfig struct {
	Driver         string `yaml:"driver"` // redis (default), memory
	Key            string `yaml:"key"`
	Consumer       string `yaml:"consumer"` // processing list name, defaults to the hostname
	Concurrency    int    `yaml:"concurrency"`
	MaxAttempts    int    `yaml:"max_attempts"`
	RetryBackoffMS int    `yaml:"retry_backoff_ms"`
	PollTimeoutSec int    `yaml:"poll_timeout_sec"`
}

// SyncConfig holds orchestrator settings.
type SyncConfig struct {
	BatchSize     int  `yaml:"batch_size"`
	CleanupChunk  int  `yaml:"cleanup_chunk"`
	EnsureSchemas bool `yaml:"ensure_schemas"`
}

// SearchConfig holds query-path settings.
type SearchConfig struct {
	TimeoutSec int `yaml:"timeout_sec"`
}

// EmbeddingConfig holds the embedding provider settings. An empty API key disables vector search.
type EmbeddingConfig struct {
	Provider            string `yaml:"provider"`
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	User                string `yaml:"user"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
	CacheTTLHours       int    `yaml:"cache_ttl_hours"`
}

// NATSConfig holds the content event consumer settings.
type NATSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Stream     string `yaml:"stream"`
	Subject    string `yaml:"subject"`
	QueueGroup string `yaml:"queue_group"`
	Durable    string `yaml:"durable"`
	AckWaitSec int    `yaml:"ack_wait_sec"`
}

// IndexConfig declares one search index.
type IndexConfig struct {
	Handle    string         `yaml:"handle"`
	Engine    string         `yaml:"engine"`
	Mode      string         `yaml:"mode"` // synced (default), read_only
	Enabled   *bool          `yaml:"enabled"`
	VectorDim int            `yaml:"vector_dim"`
	Settings  map[string]any `yaml:"settings"`
	Scope     ScopeConfig    `yaml:"scope"`
	Fields    []FieldConfig  `yaml:"fields"`
}

// ScopeConfig restricts the content an index holds. Empty lists match anything.
type ScopeConfig struct {
	SiteIDs    []string `yaml:"site_ids"`
	Categories []string `yaml:"categories"`
	Subtypes   []string `yaml:"subtypes"`
}

// FieldConfig maps a content field to an index field.
type FieldConfig struct {
	Name    string `yaml:"name"`
	Source  string `yaml:"source"`
	Type    string `yaml:"type"`
	Weight  int    `yaml:"weight"`
	Enabled *bool  `yaml:"enabled"`
	Role    string `yaml:"role"`
}

// IsEnabled reports the enabled flag, defaulting to true.
func (c IndexConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

// IsEnabled reports the enabled flag, defaulting to true.
func (c FieldConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands env variables, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Queue.Driver == "" {
		c.Queue.Driver = QueueDriverRedis
	}
	if c.Queue.Key == "" {
		c.Queue.Key = "searchbridge:jobs"
	}
	if c.Queue.Consumer == "" {
		c.Queue.Consumer = defaultConsumer()
	}
	if c.Queue.Concurrency <= 0 {
		c.Queue.Concurrency = 4
	}
	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Queue.RetryBackoffMS <= 0 {
		c.Queue.RetryBackoffMS = 1000
	}
	if c.Queue.PollTimeoutSec <= 0 {
		c.Queue.PollTimeoutSec = 2
	}
	if c.Sync.BatchSize <= 0 {
		c.Sync.BatchSize = 100
	}
	if c.Sync.CleanupChunk <= 0 {
		c.Sync.CleanupChunk = 500
	}
	if c.Search.TimeoutSec <= 0 {
		c.Search.TimeoutSec = 10
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "openai"
	}
	vec := domain.DefaultVectorConfig()
	if c.Embedding.Model == "" {
		c.Embedding.Model = vec.Model
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = vec.Dimensions
	}
	if c.Embedding.CacheTTLHours <= 0 {
		c.Embedding.CacheTTLHours = 168
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "content.events"
	}
	if c.NATS.QueueGroup == "" {
		c.NATS.QueueGroup = "searchbridge"
	}
	if c.NATS.AckWaitSec <= 0 {
		c.NATS.AckWaitSec = 30
	}
	for i := range c.Indexes {
		if c.Indexes[i].Mode == "" {
			c.Indexes[i].Mode = "synced"
		}
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Queue.Driver {
	case QueueDriverRedis, QueueDriverMemory:
	default:
		return fmt.Errorf("queue.driver must be %q or %q, got %q", QueueDriverRedis, QueueDriverMemory, c.Queue.Driver)
	}
	if c.Embedding.APIKey != "" && c.Embedding.Model == "" {
		return fmt.Errorf("embedding.model is required when embedding.api_key is set")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled")
	}
	seen := make(map[string]bool, len(c.Indexes))
	for i, idx := range c.Indexes {
		if idx.Handle == "" {
			return fmt.Errorf("indexes[%d].handle is required", i)
		}
		if seen[idx.Handle] {
			return fmt.Errorf("indexes[%d]: duplicate handle %q", i, idx.Handle)
		}
		seen[idx.Handle] = true
		if idx.Engine == "" {
			return fmt.Errorf("indexes.%s.engine is required", idx.Handle)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

func defaultConsumer() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "default"
}
