// Package retrieval answers tenant-scoped semantic queries against the knowledge base.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/kbsearch/internal/domain"
	"github.com/kailas-cloud/kbsearch/internal/domain/search/index"
	"github.com/kailas-cloud/kbsearch/internal/domain/search/outcome"
	"github.com/kailas-cloud/kbsearch/internal/domain/search/request"
	"github.com/kailas-cloud/kbsearch/internal/domain/search/result"
	"github.com/kailas-cloud/kbsearch/internal/logger"
	"github.com/kailas-cloud/kbsearch/internal/metrics"
)

// Config fixes the collection every search runs against.
type Config struct {
	Collection string
	Dimensions int
}

// Service embeds a query and runs a tenant-filtered KNN search.
// Search never returns an error: every failure becomes a Failure outcome.
type Service struct {
	index      Index
	embed      Embedder
	collection string
	dimensions int
	logger     *zap.Logger
}

// New creates a retrieval service. Empty Collection falls back to domain.DefaultCollection.
func New(idx Index, embed Embedder, cfg Config, log *zap.Logger) *Service {
	if cfg.Collection == "" {
		cfg.Collection = domain.DefaultCollection
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		index:      idx,
		embed:      embed,
		collection: cfg.Collection,
		dimensions: cfg.Dimensions,
		logger:     log,
	}
}

// EnsureCollection runs get-or-create once. Called at startup so a dimension
// disagreement between the embedder and an existing collection stops the process.
func (s *Service) EnsureCollection(ctx context.Context) (domain.Collection, error) {
	var coll domain.Collection
	err := s.index.WithSession(ctx, func(sess index.Session) error {
		c, err := sess.GetOrCreateCollection(ctx, s.collection, s.dimensions)
		if err != nil {
			return err //nolint:wrapcheck // already classified by the repository
		}
		coll = c
		return nil
	})
	if err != nil {
		return domain.Collection{}, fmt.Errorf("ensure collection %q: %w", s.collection, err)
	}
	return coll, nil
}

// Search returns the closest chunks owned by tenantID, at most limit of them.
func (s *Service) Search(ctx context.Context, query, tenantID string, limit int) (out outcome.Outcome) {
	start := time.Now()
	log := s.requestLogger(ctx).With(
		zap.String("tenant", tenantID),
		zap.Int("limit", limit),
	)

	defer func() {
		if p := recover(); p != nil {
			log.Error("search panicked", zap.Any("panic", p), zap.Stack("stack"))
			out = outcome.NewFailure(fmt.Errorf("%w: internal error: %v", domain.ErrIndexFailure, p))
		}
		s.observe(log, out, time.Since(start))
	}()

	req, err := request.New(query, tenantID, limit)
	if err != nil {
		return outcome.NewFailure(err)
	}

	hits, err := s.run(ctx, &req)
	if err != nil {
		return outcome.NewFailure(err)
	}

	entries, err := toEntries(hits)
	if err != nil {
		return outcome.NewFailure(err)
	}
	return outcome.NewSuccess(entries)
}

// Tool is the agent-facing entry point. A limit of zero means request.DefaultLimit.
func (s *Service) Tool(ctx context.Context, query, agentID string, limit int) string {
	if limit == 0 {
		limit = request.DefaultLimit
	}
	return s.Search(ctx, query, agentID, limit).String()
}

// run holds one index session across get-or-create, embedding and query.
func (s *Service) run(ctx context.Context, req *request.Request) ([]result.Result, error) {
	var hits []result.Result

	err := s.index.WithSession(ctx, func(sess index.Session) error {
		coll, err := sess.GetOrCreateCollection(ctx, s.collection, s.dimensions)
		if err != nil {
			return err //nolint:wrapcheck // already classified by the repository
		}

		vec, err := s.embedQuery(ctx, req.Query())
		if err != nil {
			return err
		}

		hits, err = sess.Query(ctx, coll, vec, req.Limit(), req.Scope())
		return err //nolint:wrapcheck // already classified by the repository
	})
	if err != nil {
		return nil, err //nolint:wrapcheck // classified by callee
	}
	return hits, nil
}

func (s *Service) embedQuery(ctx context.Context, query string) ([]float32, error) {
	res, err := s.embed.BatchEmbed(ctx, []string{query})
	if err != nil {
		if domain.KindOf(err) == domain.KindIndexFailure && !errors.Is(err, domain.ErrIndexFailure) {
			err = fmt.Errorf("%w: %w", domain.ErrEmbeddingFailure, err)
		}
		return nil, err
	}
	if len(res.Embeddings) != 1 {
		return nil, fmt.Errorf("%w: expected 1 embedding, got %d", domain.ErrEmbeddingFailure, len(res.Embeddings))
	}
	return res.Embeddings[0], nil
}

func toEntries(hits []result.Result) ([]outcome.Entry, error) {
	entries := make([]outcome.Entry, 0, len(hits))
	for i := range hits {
		text, err := hits[i].Text()
		if err != nil {
			return nil, fmt.Errorf("hit %q: %w", hits[i].ID(), err)
		}
		entries = append(entries, outcome.Entry{
			Score:    hits[i].Score(),
			Text:     text,
			ID:       hits[i].ID(),
			Metadata: hits[i].Metadata(),
		})
	}
	return entries, nil
}

func (s *Service) requestLogger(ctx context.Context) *zap.Logger {
	return logger.FromContextOr(ctx, s.logger)
}

func (s *Service) observe(log *zap.Logger, out outcome.Outcome, d time.Duration) {
	kind := out.Kind().String()
	metrics.SearchRequestsTotal.WithLabelValues(kind, string(out.ErrorKind())).Inc()
	metrics.SearchDuration.WithLabelValues(kind).Observe(d.Seconds())

	if out.IsFailure() {
		lvl := log.Warn
		if out.ErrorKind() != domain.KindInvalidArgument {
			lvl = log.Error
		}
		lvl("search failed",
			zap.String("error_kind", string(out.ErrorKind())),
			zap.String("error", out.Message()),
			zap.Duration("duration", d),
		)
		return
	}

	metrics.SearchHitsReturned.Observe(float64(len(out.Entries())))
	log.Info("search completed",
		zap.String("outcome", kind),
		zap.Int("hits", len(out.Entries())),
		zap.Duration("duration", d),
	)
}

// Validate reports wiring errors that would otherwise surface on the first search.
func (s *Service) Validate() error {
	if s.index == nil {
		return errors.New("retrieval: nil index")
	}
	if s.embed == nil {
		return errors.New("retrieval: nil embedder")
	}
	if s.dimensions <= 0 {
		return domain.InvalidArgument("vector dimensions must be positive, got %d", s.dimensions)
	}
	return nil
}
