package retrieval

import (
	"context"

	"github.com/kailas-cloud/kbsearch/internal/domain"
	"github.com/kailas-cloud/kbsearch/internal/domain/search/index"
)

// Index opens scoped sessions on the vector index.
// The session is released when fn returns, whatever the outcome.
type Index interface {
	WithSession(ctx context.Context, fn func(index.Session) error) error
}

// Embedder vectorizes query text.
type Embedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}
