package db

import (
	"context"
	"fmt"
	"time"
)

// Connector is a vector index backend. It hands out exclusive sessions;
// a session is never shared between concurrent callers.
type Connector interface {
	Pinger
	Connect(ctx context.Context) (Session, error)
	Close()
}

// Pinger checks backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Session is one acquired backend connection.
// Release returns the connection and must be safe to call more than once;
// only the first call has an effect.
type Session interface {
	CollectionManager
	Searcher
	Release()
}

// CollectionManager provides collection lookup and creation.
type CollectionManager interface {
	// EnsureCollection returns the collection, creating it with dim and the
	// cosine metric when absent. A concurrent creator winning the race is not
	// an error: the existing collection is re-read and returned.
	EnsureCollection(ctx context.Context, name string, dim int) (CollectionInfo, error)
}

// Searcher provides vector similarity search.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
}

// CollectionInfo describes an existing collection.
type CollectionInfo struct {
	Name      string
	Dimension int
	Created   bool // true when this call created it
}

// WaitForReady polls Ping until the backend responds or timeout expires.
func WaitForReady(ctx context.Context, p Pinger, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.Ping(ctx); err == nil {
		return nil
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for vector index: %w", ctx.Err())
		case <-ticker.C:
			if err := p.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}
