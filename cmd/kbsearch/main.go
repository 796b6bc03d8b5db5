package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbsearch/internal/config"
	"github.com/kailas-cloud/kbsearch/internal/db"
	dbPostgres "github.com/kailas-cloud/kbsearch/internal/db/postgres"
	dbQdrant "github.com/kailas-cloud/kbsearch/internal/db/qdrant"
	dbRedis "github.com/kailas-cloud/kbsearch/internal/db/redis"
	"github.com/kailas-cloud/kbsearch/internal/domain"
	logpkg "github.com/kailas-cloud/kbsearch/internal/logger"
	"github.com/kailas-cloud/kbsearch/internal/metrics"
	searchrepo "github.com/kailas-cloud/kbsearch/internal/repository/search"
	chiTransport "github.com/kailas-cloud/kbsearch/internal/transport/chi"
	fastembedEmb "github.com/kailas-cloud/kbsearch/internal/transport/fastembed"
	openaiEmb "github.com/kailas-cloud/kbsearch/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/kbsearch/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/kbsearch/internal/usecase/health"
	"github.com/kailas-cloud/kbsearch/internal/usecase/retrieval"
	"github.com/kailas-cloud/kbsearch/internal/version"
)

// queryEmbedder is what the retrieval and health services need from the embedder chain.
type queryEmbedder interface {
	domain.BatchEmbedder
	domain.HealthChecker
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic("failed to load .env: " + err.Error())
	}

	// Load configuration based on ENV
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

	logger.Info("Starting kbsearch",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index_driver", cfg.Index.Driver),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("collection", cfg.Vector.Collection),
		zap.Int("dimensions", cfg.Vector.Dimensions),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()
	metrics.RegisterHTTPMetrics()

	ctx := context.Background()

	store, err := buildStore(ctx, cfg.Index)
	if err != nil {
		logger.Fatal("Failed to create vector index store", zap.Error(err))
	}
	defer store.Close()

	readiness := time.Duration(cfg.Index.ReadinessTimeout) * time.Second
	if err := db.WaitForReady(ctx, store, readiness); err != nil {
		logger.Fatal("Vector index not ready", zap.Error(err))
	}
	logger.Info("Connected to vector index")

	embedder, closeEmbedder, err := buildEmbedder(cfg.Embedding, cfg.Vector, logger)
	if err != nil {
		logger.Fatal("Failed to create embedder", zap.Error(err))
	}
	defer closeEmbedder()
	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
	)

	searchSvc := retrieval.New(searchrepo.New(store), embedder, retrieval.Config{
		Collection: cfg.Vector.Collection,
		Dimensions: cfg.Vector.Dimensions,
	}, logger)
	if err := searchSvc.Validate(); err != nil {
		logger.Fatal("Invalid retrieval configuration", zap.Error(err))
	}

	// A dimension disagreement with an existing collection is fatal at startup.
	coll, err := searchSvc.EnsureCollection(ctx)
	if err != nil {
		logger.Fatal("Failed to prepare collection", zap.Error(err))
	}
	logger.Info("Collection ready",
		zap.String("collection", coll.Name),
		zap.Int("dimension", coll.Dimension),
	)

	healthSvc := healthuc.New(store, embedder)

	server := chiTransport.NewServer(searchSvc, healthSvc, logger)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildStore creates the vector index backend selected by index.driver.
func buildStore(ctx context.Context, cfg config.IndexConfig) (db.Connector, error) {
	switch cfg.Driver {
	case config.DriverRedis, config.DriverValkey:
		return dbRedis.NewStore(dbRedis.Config{
			Addrs:           cfg.Redis.Addrs,
			Username:        cfg.Redis.Username,
			Password:        cfg.Redis.Password,
			DB:              cfg.Redis.DB,
			KeyPrefix:       cfg.Redis.KeyPrefix,
			HNSWM:           cfg.Redis.HNSWM,
			HNSWEFConstruct: cfg.Redis.HNSWEFConstruct,
		})
	case config.DriverPostgres:
		return dbPostgres.NewStore(ctx, dbPostgres.Config{
			DSN:      cfg.Postgres.DSN,
			Schema:   cfg.Postgres.Schema,
			MaxConns: cfg.Postgres.MaxConns,
		})
	case config.DriverQdrant:
		return dbQdrant.NewStore(dbQdrant.Config{
			Host:   cfg.Qdrant.Host,
			Port:   cfg.Qdrant.Port,
			APIKey: cfg.Qdrant.APIKey,
			UseTLS: cfg.Qdrant.UseTLS,
		})
	default:
		return nil, fmt.Errorf("unknown index driver %q", cfg.Driver)
	}
}

// buildEmbedder assembles the decorator chain: provider -> Instrumented -> Instruction.
// The returned func releases provider resources.
func buildEmbedder(
	cfg config.EmbeddingConfig, vec config.VectorConfig, logger *zap.Logger,
) (queryEmbedder, func(), error) {
	var (
		base    domain.BatchEmbedder
		closeFn = func() {}
	)

	switch cfg.Provider {
	case config.ProviderFastembed:
		fe, err := fastembedEmb.NewEmbedder(&fastembedEmb.Config{
			Model:      cfg.Model,
			Dimensions: vec.Dimensions,
			CacheDir:   cfg.CacheDir,
			Logger:     logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("fastembed: %w", err)
		}
		base = fe
		closeFn = func() { _ = fe.Close() }
	default:
		base = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:         cfg.APIKey,
			BaseURL:        cfg.BaseURL,
			Model:          cfg.Model,
			Dimensions:     vec.Dimensions,
			SendDimensions: cfg.SendDimensions,
			Provider:       cfg.Provider,
			Timeout:        time.Duration(cfg.TimeoutSec) * time.Second,
			Logger:         logger,
		})
	}

	var embedder queryEmbedder = embeddinguc.NewInstrumentedEmbedder(
		base, cfg.Provider, cfg.Model, vec.Dimensions, logger,
	).WithMaxBatchSize(cfg.MaxBatchSize)

	// Instruction prefix (outermost)
	if cfg.QueryInstruction != "" {
		embedder = domain.NewInstructionEmbedder(embedder, cfg.QueryInstruction)
	}

	return embedder, closeFn, nil
}
