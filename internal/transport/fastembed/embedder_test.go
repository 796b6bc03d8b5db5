package fastembed

import (
	"context"
	"errors"
	"testing"

	fastembed "github.com/anush008/fastembed-go"

	"github.com/kailas-cloud/kbsearch/internal/domain"
)

type fakeModel struct {
	vectors   map[string][]float32
	err       error
	calls     []string
	destroyed int
}

func (f *fakeModel) QueryEmbed(input string) ([]float32, error) {
	f.calls = append(f.calls, input)
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[input], nil
}

func (f *fakeModel) Destroy() error {
	f.destroyed++
	return nil
}

func TestResolveModel(t *testing.T) {
	tests := []struct {
		name    string
		want    fastembed.EmbeddingModel
		wantDim int
	}{
		{"", fastembed.BGESmallENV15, 384},
		{"BAAI/bge-base-en-v1.5", fastembed.BGEBaseENV15, 768},
		{"sentence-transformers/all-MiniLM-L6-v2", fastembed.AllMiniLML6V2, 384},
		{string(fastembed.BGESmallZH), fastembed.BGESmallZH, 512},
	}
	for _, tc := range tests {
		m, dim, err := resolveModel(tc.name)
		if err != nil {
			t.Fatalf("resolveModel(%q): %v", tc.name, err)
		}
		if m != tc.want || dim != tc.wantDim {
			t.Errorf("resolveModel(%q) = %s/%d, want %s/%d", tc.name, m, dim, tc.want, tc.wantDim)
		}
	}
}

func TestResolveModel_Unknown(t *testing.T) {
	_, _, err := resolveModel("text-embedding-3-small")
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestNewEmbedder_DimensionMismatch(t *testing.T) {
	_, err := NewEmbedder(&Config{Model: "BAAI/bge-small-en-v1.5", Dimensions: 1024})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestBatchEmbed_PreservesOrder(t *testing.T) {
	fm := &fakeModel{vectors: map[string][]float32{
		"a": {1, 0},
		"b": {0, 1},
	}}
	e := newWithModel(fm, "test", 2, nil)

	res, err := e.BatchEmbed(context.Background(), []string{"b", "a"})
	if err != nil {
		t.Fatalf("BatchEmbed: %v", err)
	}
	if res.Embeddings[0][1] != 1 || res.Embeddings[1][0] != 1 {
		t.Errorf("embeddings out of order: %v", res.Embeddings)
	}
}

func TestBatchEmbed_Empty(t *testing.T) {
	e := newWithModel(&fakeModel{}, "test", 2, nil)
	_, err := e.BatchEmbed(context.Background(), nil)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestBatchEmbed_ModelError(t *testing.T) {
	e := newWithModel(&fakeModel{err: errors.New("onnx: bad input")}, "test", 2, nil)
	_, err := e.BatchEmbed(context.Background(), []string{"q"})
	if !errors.Is(err, domain.ErrEmbeddingFailure) {
		t.Fatalf("expected ErrEmbeddingFailure, got %v", err)
	}
}

func TestBatchEmbed_WrongDimension(t *testing.T) {
	fm := &fakeModel{vectors: map[string][]float32{"q": {1, 2, 3}}}
	e := newWithModel(fm, "test", 2, nil)
	_, err := e.BatchEmbed(context.Background(), []string{"q"})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestBatchEmbed_CanceledContext(t *testing.T) {
	fm := &fakeModel{vectors: map[string][]float32{"q": {1, 0}}}
	e := newWithModel(fm, "test", 2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.BatchEmbed(ctx, []string{"q"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(fm.calls) != 0 {
		t.Errorf("model must not be called after cancel, got %d calls", len(fm.calls))
	}
}

func TestClose_Idempotent(t *testing.T) {
	fm := &fakeModel{}
	e := newWithModel(fm, "test", 2, nil)

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if fm.destroyed != 1 {
		t.Errorf("Destroy called %d times, want 1", fm.destroyed)
	}
	if err := e.HealthCheck(context.Background()); err == nil {
		t.Error("expected HealthCheck to fail after Close")
	}
	if _, err := e.BatchEmbed(context.Background(), []string{"q"}); !errors.Is(err, domain.ErrEmbeddingFailure) {
		t.Errorf("expected ErrEmbeddingFailure after Close, got %v", err)
	}
}
