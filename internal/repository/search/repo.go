package search

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/kbsearch/internal/db"
	"github.com/kailas-cloud/kbsearch/internal/domain"
	"github.com/kailas-cloud/kbsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/kbsearch/internal/domain/search/index"
	"github.com/kailas-cloud/kbsearch/internal/domain/search/result"
	"github.com/kailas-cloud/kbsearch/internal/metrics"
)

// connector is the consumer interface for session acquisition (ISP).
type connector interface {
	Connect(ctx context.Context) (db.Session, error)
}

// Repo implements usecase/retrieval.Index over any db.Connector.
type Repo struct {
	connector connector
}

// New creates a vector index repository.
func New(c connector) *Repo {
	return &Repo{connector: c}
}

// WithSession acquires a backend session, runs fn and releases the session on
// every exit path, including a panic inside fn.
func (r *Repo) WithSession(ctx context.Context, fn func(index.Session) error) error {
	sess, err := r.connector.Connect(ctx)
	if err != nil {
		return fmt.Errorf("%w: connect: %w", domain.ErrIndexFailure, err)
	}
	metrics.IndexSessionsActive.Inc()
	defer func() {
		sess.Release()
		metrics.IndexSessionsActive.Dec()
	}()

	return fn(&session{db: sess})
}

type session struct {
	db db.Session
}

var _ index.Session = (*session)(nil)

// GetOrCreateCollection ensures the collection exists and checks its dimension.
func (s *session) GetOrCreateCollection(ctx context.Context, name string, dim int) (domain.Collection, error) {
	if name == "" {
		return domain.Collection{}, domain.InvalidArgument("collection name must not be empty")
	}
	if dim <= 0 {
		return domain.Collection{}, domain.InvalidArgument("dimension must be positive, got %d", dim)
	}

	info, err := s.db.EnsureCollection(ctx, name, dim)
	if err != nil {
		return domain.Collection{}, fmt.Errorf("%w: get or create collection %q: %w", domain.ErrIndexFailure, name, err)
	}
	if info.Dimension != dim {
		return domain.Collection{}, domain.NewDimensionMismatch(fmt.Sprintf("collection %q", name), dim, info.Dimension)
	}

	return domain.Collection{Name: name, Dimension: info.Dimension}, nil
}

// Query runs the tenant-scoped KNN search. The backend ordering is kept as delivered.
func (s *session) Query(
	ctx context.Context, coll domain.Collection,
	vector []float32, limit int, scope filter.Expression,
) ([]result.Result, error) {
	if _, ok := scope.Tenant(); !ok {
		return nil, domain.InvalidArgument("query scope has no %q condition", domain.TenantField)
	}
	if limit <= 0 {
		return nil, domain.InvalidArgument("limit must be positive, got %d", limit)
	}
	if len(vector) != coll.Dimension {
		return nil, domain.NewDimensionMismatch("query vector", coll.Dimension, len(vector))
	}

	sr, err := s.db.SearchKNN(ctx, &db.KNNQuery{
		Collection: coll.Name,
		Filters:    scope,
		Vector:     vector,
		K:          limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query %q: %w", domain.ErrIndexFailure, coll.Name, err)
	}
	if sr == nil {
		return nil, fmt.Errorf("%w: query %q returned no result set", domain.ErrIndexFailure, coll.Name)
	}

	entries := sr.Entries
	if len(entries) > limit {
		entries = entries[:limit]
	}

	results := make([]result.Result, 0, len(entries))
	for _, e := range entries {
		results = append(results, result.New(e.Key, e.Score, e.Fields))
	}
	return results, nil
}
