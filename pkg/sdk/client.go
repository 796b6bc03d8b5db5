package kbsearch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbsearch/internal/db"
	dbPostgres "github.com/kailas-cloud/kbsearch/internal/db/postgres"
	dbQdrant "github.com/kailas-cloud/kbsearch/internal/db/qdrant"
	dbRedis "github.com/kailas-cloud/kbsearch/internal/db/redis"
	"github.com/kailas-cloud/kbsearch/internal/domain"
	"github.com/kailas-cloud/kbsearch/internal/domain/search/outcome"
	"github.com/kailas-cloud/kbsearch/internal/domain/search/request"
	searchrepo "github.com/kailas-cloud/kbsearch/internal/repository/search"
	healthuc "github.com/kailas-cloud/kbsearch/internal/usecase/health"
	"github.com/kailas-cloud/kbsearch/internal/usecase/retrieval"
)

const defaultReadinessTimeout = 10 * time.Second

// searchUseCase is the retrieval core as the client sees it.
type searchUseCase interface {
	Search(ctx context.Context, query, tenantID string, limit int) outcome.Outcome
}

// Client is the kbsearch SDK entry point.
type Client struct {
	store     db.Connector
	searchSvc searchUseCase
	healthSvc healthUseCase
	obs       *observer
}

// Match is one ranked chunk.
type Match struct {
	ID       string
	Score    float64
	Text     string
	Metadata map[string]any
}

// Result is a structured search answer. Text is the rendered tool string.
type Result struct {
	Matches []Match
	Text    string
}

// New creates a Client, waits for the index and prepares the collection.
// The provided context bounds the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		vectorDimensions: domain.DefaultVectorConfig().Dimensions,
		collection:       domain.DefaultCollection,
	}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.driver == "" {
		return nil, errors.New("kbsearch: index backend required (use WithRedis, WithValkey, WithPostgres or WithQdrant)")
	}

	store, err := createStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := db.WaitForReady(ctx, store, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("kbsearch: index not ready: %w", err)
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		store.Close()
		return nil, err
	}

	c, svc := wireClient(store, cfg, obs)
	if _, err := svc.EnsureCollection(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("kbsearch: %w", err)
	}
	return c, nil
}

func createStore(ctx context.Context, cfg *clientConfig) (db.Connector, error) {
	switch cfg.driver {
	case driverRedis, driverValkey:
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:           cfg.addrs,
			Password:        cfg.password,
			KeyPrefix:       cfg.keyPrefix,
			HNSWM:           cfg.hnswM,
			HNSWEFConstruct: cfg.hnswEFConstruct,
		})
		if err != nil {
			return nil, fmt.Errorf("kbsearch: create %s store: %w", cfg.driver, err)
		}
		return s, nil
	case driverPostgres:
		s, err := dbPostgres.NewStore(ctx, dbPostgres.Config{DSN: cfg.dsn})
		if err != nil {
			return nil, fmt.Errorf("kbsearch: create postgres store: %w", err)
		}
		return s, nil
	case driverQdrant:
		s, err := dbQdrant.NewStore(dbQdrant.Config{
			Host:   cfg.host,
			Port:   cfg.port,
			APIKey: cfg.apiKey,
		})
		if err != nil {
			return nil, fmt.Errorf("kbsearch: create qdrant store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("kbsearch: unknown driver %q", cfg.driver)
	}
}

func wireClient(store db.Connector, cfg *clientConfig, obs *observer) (*Client, *retrieval.Service) {
	// Without an embedder every search fails with embedding_failure.
	var (
		emb     retrieval.Embedder = noopEmbedder{}
		checker healthuc.EmbeddingChecker
	)
	if cfg.embedder != nil {
		adapter := &embedderAdapter{inner: cfg.embedder}
		emb, checker = adapter, adapter
	}

	log := cfg.logger
	if log == nil {
		log = zap.NewNop()
	}

	svc := retrieval.New(searchrepo.New(store), emb, retrieval.Config{
		Collection: cfg.collection,
		Dimensions: cfg.vectorDimensions,
	}, log)

	return &Client{
		store:     store,
		searchSvc: svc,
		healthSvc: healthuc.New(store, checker),
		obs:       obs,
	}, svc
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks index connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Search returns up to limit chunks owned by agentID, closest first.
// A zero limit means 5. Empty results are not an error. On failure the
// error wraps one of the package sentinels and Result.Text holds the
// rendered error string.
func (c *Client) Search(ctx context.Context, query, agentID string, limit int) (res Result, err error) {
	start := time.Now()
	defer func() { c.obs.observe("search", start, err) }()

	out := c.searchSvc.Search(ctx, query, agentID, normalizeLimit(limit))
	res = toResult(out)
	if out.IsFailure() {
		return res, fmt.Errorf("%w: %s", sentinelFor(out.ErrorKind()), out.Message())
	}
	return res, nil
}

// VectorSearchTool answers in the plain-text tool format. It never fails:
// errors are rendered as "Error during vector search: ...". A zero limit means 5.
func (c *Client) VectorSearchTool(ctx context.Context, query, agentID string, limit int) string {
	start := time.Now()
	out := c.searchSvc.Search(ctx, query, agentID, normalizeLimit(limit))

	var err error
	if out.IsFailure() {
		err = fmt.Errorf("%w: %s", sentinelFor(out.ErrorKind()), out.Message())
	}
	c.obs.observe("vector_search_tool", start, err)
	return out.String()
}

func normalizeLimit(limit int) int {
	if limit == 0 {
		return request.DefaultLimit
	}
	return limit
}

func toResult(out outcome.Outcome) Result {
	res := Result{Text: out.String()}
	for _, e := range out.Entries() {
		res.Matches = append(res.Matches, Match{
			ID:       e.ID,
			Score:    e.Score,
			Text:     e.Text,
			Metadata: e.Metadata,
		})
	}
	return res
}
