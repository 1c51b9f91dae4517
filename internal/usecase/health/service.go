package health

import (
	"context"
	"time"

	"github.com/kailas-cloud/searchbridge/internal/logger"
	"go.uber.org/zap"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates the job store is down: nothing can be synced.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Check names.
const (
	CheckDatabase  = "database"
	CheckContent   = "content"
	CheckEmbedding = "embedding"
	enginePrefix   = "engine:"
)

const defaultCheckTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	content   DBPinger
	embedding EmbeddingChecker
	indexes   IndexLister
	engines   EngineProvider
	timeout   time.Duration
}

// New creates a Service. embedding can be nil.
func New(db DBPinger, embedding EmbeddingChecker) *Service {
	return &Service{db: db, embedding: embedding, timeout: defaultCheckTimeout}
}

// WithContentStore adds the content database check.
func (s *Service) WithContentStore(p DBPinger) *Service {
	s.content = p
	return s
}

// WithEngines adds one ping per enabled index backend, named engine:<handle>.
func (s *Service) WithEngines(indexes IndexLister, engines EngineProvider) *Service {
	s.indexes = indexes
	s.engines = engines
	return s
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	log := logger.FromContext(ctx)

	run := func(name string, fn func(context.Context) error) {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if err := fn(cctx); err != nil {
			log.Warn("Health check failed", zap.String("check", name), zap.Error(err))
			checks[name] = CheckError
			return
		}
		checks[name] = CheckOK
	}

	run(CheckDatabase, s.db.Ping)
	if s.content != nil {
		run(CheckContent, s.content.Ping)
	}
	if s.embedding != nil {
		run(CheckEmbedding, s.embedding.HealthCheck)
	}
	if s.indexes != nil && s.engines != nil {
		for _, idx := range s.indexes.List() {
			if !idx.Enabled() {
				continue
			}
			run(enginePrefix+idx.Handle(), func(ctx context.Context) error {
				eng, err := s.engines.For(idx)
				if err != nil {
					return err
				}
				return eng.Ping(ctx)
			})
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks[CheckDatabase] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}
