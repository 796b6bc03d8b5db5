package search

import (
	"context"
	"testing"

	"github.com/kailas-cloud/kbsearch/internal/db"
)

// mockSession implements db.Session for tests.
type mockSession struct {
	ensureFn   func(ctx context.Context, name string, dim int) (db.CollectionInfo, error)
	searchFn   func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	released   int
	lastSearch *db.KNNQuery
}

func (m *mockSession) EnsureCollection(ctx context.Context, name string, dim int) (db.CollectionInfo, error) {
	if m.ensureFn != nil {
		return m.ensureFn(ctx, name, dim)
	}
	return db.CollectionInfo{Name: name, Dimension: dim}, nil
}

func (m *mockSession) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	m.lastSearch = q
	if m.searchFn != nil {
		return m.searchFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockSession) Release() { m.released++ }

// mockConnector hands out one session.
type mockConnector struct {
	session    *mockSession
	connectErr error
}

func (m *mockConnector) Connect(context.Context) (db.Session, error) {
	if m.connectErr != nil {
		return nil, m.connectErr
	}
	return m.session, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockSession) {
	t.Helper()
	sess := &mockSession{}
	return New(&mockConnector{session: sess}), sess
}
