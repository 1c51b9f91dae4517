package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/searchbridge/internal/config"
	"github.com/kailas-cloud/searchbridge/internal/db"
	"github.com/kailas-cloud/searchbridge/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/searchbridge/internal/db/redis"
	"github.com/kailas-cloud/searchbridge/internal/domain"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/engine"
	"github.com/kailas-cloud/searchbridge/internal/engine/algolia"
	"github.com/kailas-cloud/searchbridge/internal/engine/esfamily"
	"github.com/kailas-cloud/searchbridge/internal/engine/meili"
	"github.com/kailas-cloud/searchbridge/internal/engine/typesense"
	logpkg "github.com/kailas-cloud/searchbridge/internal/logger"
	"github.com/kailas-cloud/searchbridge/internal/metrics"
	"github.com/kailas-cloud/searchbridge/internal/queue"
	"github.com/kailas-cloud/searchbridge/internal/queue/redisq"
	contentrepo "github.com/kailas-cloud/searchbridge/internal/repository/content"
	"github.com/kailas-cloud/searchbridge/internal/repository/embcache"
	"github.com/kailas-cloud/searchbridge/internal/repository/indexes"
	"github.com/kailas-cloud/searchbridge/internal/resolver"
	chiTransport "github.com/kailas-cloud/searchbridge/internal/transport/chi"
	natsTransport "github.com/kailas-cloud/searchbridge/internal/transport/nats"
	openaiEmb "github.com/kailas-cloud/searchbridge/internal/transport/openai"
	healthuc "github.com/kailas-cloud/searchbridge/internal/usecase/health"
	"github.com/kailas-cloud/searchbridge/internal/usecase/indexsync"
	"github.com/kailas-cloud/searchbridge/internal/usecase/jobs"
	searchuc "github.com/kailas-cloud/searchbridge/internal/usecase/search"
	"github.com/kailas-cloud/searchbridge/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting searchbridge",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("queue_driver", cfg.Queue.Driver),
		zap.Int("indexes", len(cfg.Indexes)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Job store and embedding cache
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
		DB:       cfg.Database.DB,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Content store
	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:             cfg.Postgres.DSN,
		MaxConns:        cfg.Postgres.MaxConns,
		MinConns:        cfg.Postgres.MinConns,
		ConnectAttempts: cfg.Postgres.ConnectAttempts,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect to content store", zap.Error(err))
	}
	defer pool.Close()
	content := contentrepo.New(pool)

	// Explicit registration, no init()
	metrics.RegisterHTTPMetrics()
	metrics.RegisterEngineMetrics()
	metrics.RegisterJobMetrics()
	metrics.RegisterEmbeddingMetrics()

	registry, err := indexes.FromConfig(cfg.Indexes)
	if err != nil {
		logger.Fatal("Invalid index configuration", zap.Error(err))
	}

	engines := engine.NewPool(map[index.EngineType]engine.Factory{
		index.Elasticsearch: esfamily.ElasticsearchFactory(logger),
		index.OpenSearch:    esfamily.OpenSearchFactory(logger),
		index.Algolia:       algolia.Factory(logger),
		index.Meilisearch:   meili.Factory(logger),
		index.Typesense:     typesense.Factory(logger),
	})
	defer func() {
		if err := engines.Close(); err != nil {
			logger.Warn("Closing engine clients", zap.Error(err))
		}
	}()

	// Embedder chains, one per purpose: OpenAI -> Cached -> Instruction
	provider := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		User:       cfg.Embedding.User,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	queryEmbedder := buildEmbedder(provider, store, cfg.Embedding, domain.PurposeQuery, cfg.Embedding.QueryInstruction, logger)
	docEmbedder := buildEmbedder(provider, store, cfg.Embedding, domain.PurposeDocument, cfg.Embedding.DocumentInstruction, logger)
	if provider != nil {
		logger.Info("Embedders created",
			zap.String("provider", cfg.Embedding.Provider),
			zap.String("model", cfg.Embedding.Model),
			zap.Int("dimensions", cfg.Embedding.Dimensions),
		)
	} else {
		logger.Warn("No embedding API key configured, vector search disabled")
	}

	// Job queue
	var q queue.Queue
	switch cfg.Queue.Driver {
	case config.QueueDriverMemory:
		q = queue.NewMemory()
	default:
		q = redisq.New(store, logger).
			WithKey(cfg.Queue.Key).
			WithConsumer(cfg.Queue.Consumer).
			WithPollTimeout(time.Duration(cfg.Queue.PollTimeoutSec) * time.Second)
	}

	// Use case services
	assembler := resolver.NewAssembler(resolver.NewRegistry(), docEmbedder)
	jobSvc := jobs.New(registry, engines, content, assembler).
		WithGenerationRecorder(store).
		WithCleanupChunk(cfg.Sync.CleanupChunk)
	syncSvc := indexsync.New(registry, engines, q, content).
		WithBatchSize(cfg.Sync.BatchSize)
	searchSvc := searchuc.New(registry, engines, queryEmbedder)

	var embeddingChecker healthuc.EmbeddingChecker
	if provider != nil {
		embeddingChecker = provider
	}
	healthSvc := healthuc.New(store, embeddingChecker).
		WithContentStore(pool).
		WithEngines(registry, engines)

	if cfg.Sync.EnsureSchemas {
		if err := syncSvc.EnsureSchemas(logpkg.ContextWithLogger(ctx, logger)); err != nil {
			logger.Fatal("Failed to ensure index schemas", zap.Error(err))
		}
		logger.Info("Index schemas ensured")
	}

	// Worker
	worker := queue.NewWorker(q, jobSvc, logger).
		WithConcurrency(cfg.Queue.Concurrency).
		WithMaxAttempts(cfg.Queue.MaxAttempts).
		WithRetryBackoff(time.Duration(cfg.Queue.RetryBackoffMS) * time.Millisecond)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := worker.Run(ctx); err != nil {
			logger.Error("Worker stopped with error", zap.Error(err))
		}
	}()

	// NATS consumer
	if cfg.NATS.Enabled {
		consumer, err := natsTransport.Connect(natsTransport.Config{
			URL:        cfg.NATS.URL,
			Stream:     cfg.NATS.Stream,
			Subject:    cfg.NATS.Subject,
			QueueGroup: cfg.NATS.QueueGroup,
			Durable:    cfg.NATS.Durable,
			AckWait:    time.Duration(cfg.NATS.AckWaitSec) * time.Second,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		if err := consumer.Start(ctx, natsTransport.NewHandler(syncSvc)); err != nil {
			logger.Fatal("Failed to subscribe to content events", zap.Error(err))
		}
		defer func() {
			if err := consumer.Close(); err != nil {
				logger.Warn("Draining NATS", zap.Error(err))
			}
		}()
	}

	// HTTP server
	server := chiTransport.NewServer(searchSvc, syncSvc, registry, healthSvc)
	router := chiTransport.NewRouter(server, chiTransport.RouterConfig{
		APIKeys:        cfg.HTTP.APIKeys,
		RequestTimeout: time.Duration(cfg.Search.TimeoutSec) * time.Second,
	}, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logger.Warn("Worker did not drain before shutdown timeout")
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles one purpose's decorator chain. A nil provider
// yields a nil embedder: callers then skip vector work.
func buildEmbedder(
	provider *openaiEmb.Embedder,
	store db.KVStore,
	cfg config.EmbeddingConfig,
	purpose domain.EmbeddingPurpose,
	instruction string,
	logger *zap.Logger,
) domain.Embedder {
	// Typed nil pointer wrapped in the interface would not compare to nil.
	if provider == nil {
		return nil
	}

	var embedder domain.Embedder = embcache.New(provider, store, embcache.Config{
		Model:   cfg.Model,
		Purpose: purpose,
		TTL:     time.Duration(cfg.CacheTTLHours) * time.Hour,
	}, metrics.EmbeddingCacheTotal, logger)

	// Instruction prefix outermost: the cache key includes it.
	return domain.NewInstructionEmbedder(embedder, instruction)
}
