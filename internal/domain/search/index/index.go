// Package index defines the vector index contract the retrieval core consumes.
package index

import (
	"context"

	"github.com/kailas-cloud/kbsearch/internal/domain"
	"github.com/kailas-cloud/kbsearch/internal/domain/search/filter"
	"github.com/kailas-cloud/kbsearch/internal/domain/search/result"
)

// Session is one exclusive connection to the vector index, valid only inside
// the callback that received it.
type Session interface {
	// GetOrCreateCollection returns the named collection, creating it with dim when absent.
	// An existing collection with another dimension fails with domain.ErrDimensionMismatch.
	GetOrCreateCollection(ctx context.Context, name string, dim int) (domain.Collection, error)

	// Query returns at most limit hits within scope, closest first by cosine distance.
	// scope must carry a tenant condition. An empty slice means no matches.
	Query(
		ctx context.Context, coll domain.Collection,
		vector []float32, limit int, scope filter.Expression,
	) ([]result.Result, error)
}
