package kbsearch

import (
	"context"
	"sync"

	"github.com/kailas-cloud/kbsearch/internal/db"
	"github.com/kailas-cloud/kbsearch/internal/domain/search/outcome"
	healthuc "github.com/kailas-cloud/kbsearch/internal/usecase/health"
)

// --- embedders ---

type mockEmbedder struct {
	fn func(ctx context.Context, text string) (EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return m.fn(ctx, text)
}

type mockBatchEmbedder struct {
	fn          func(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
	singleCalls int
}

func (m *mockBatchEmbedder) Embed(_ context.Context, _ string) (EmbeddingResult, error) {
	m.singleCalls++
	return EmbeddingResult{}, nil
}

func (m *mockBatchEmbedder) BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error) {
	return m.fn(ctx, texts)
}

// --- use cases ---

type mockSearchUC struct {
	out    outcome.Outcome
	query  string
	tenant string
	limit  int
}

func (m *mockSearchUC) Search(_ context.Context, query, tenantID string, limit int) outcome.Outcome {
	m.query, m.tenant, m.limit = query, tenantID, limit
	return m.out
}

type mockHealthUC struct {
	report healthuc.Report
}

func (m *mockHealthUC) Check(_ context.Context) healthuc.Report { return m.report }

// --- index backend ---

// fakeStore is an in-memory db.Connector that applies the tenant filter.
type fakeStore struct {
	mu        sync.Mutex
	entries   []db.SearchEntry
	dim       int
	connected int
	released  int
}

func (s *fakeStore) Ping(_ context.Context) error { return nil }

func (s *fakeStore) Connect(_ context.Context) (db.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected++
	return &fakeSession{store: s}, nil
}

func (s *fakeStore) Close() {}

type fakeSession struct {
	store *fakeStore
	once  sync.Once
}

func (f *fakeSession) EnsureCollection(_ context.Context, name string, dim int) (db.CollectionInfo, error) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	created := f.store.dim == 0
	if created {
		f.store.dim = dim
	}
	return db.CollectionInfo{Name: name, Dimension: f.store.dim, Created: created}, nil
}

func (f *fakeSession) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	tenant, _ := q.Filters.Tenant()
	out := &db.SearchResult{Entries: []db.SearchEntry{}}
	for _, e := range f.store.entries {
		if e.Fields["agentId"] == tenant {
			out.Entries = append(out.Entries, e)
		}
	}
	out.Total = len(out.Entries)
	return out, nil
}

func (f *fakeSession) Release() {
	f.once.Do(func() {
		f.store.mu.Lock()
		f.store.released++
		f.store.mu.Unlock()
	})
}
