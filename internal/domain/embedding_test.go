package domain

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubEmbedder struct {
	result EmbeddingResult
	err    error
	got    []string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	s.got = append(s.got, text)
	return s.result, s.err
}

type stubBatchEmbedder struct {
	batchResult BatchEmbeddingResult
	batchErr    error
	batchTexts  []string
}

func (s *stubBatchEmbedder) BatchEmbed(_ context.Context, texts []string) (BatchEmbeddingResult, error) {
	s.batchTexts = texts
	return s.batchResult, s.batchErr
}

func TestInstructionEmbedder_PrependsInstruction(t *testing.T) {
	inner := &stubBatchEmbedder{batchResult: BatchEmbeddingResult{Embeddings: [][]float32{{0.1, 0.2, 0.3}}}}
	emb := NewInstructionEmbedder(inner, "search_query: ")

	res, err := emb.BatchEmbed(context.Background(), []string{"hello world"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.batchTexts[0] != "search_query: hello world" {
		t.Errorf("expected prepended text, got %q", inner.batchTexts[0])
	}
	if len(res.Embeddings) != 1 {
		t.Errorf("expected 1 embedding, got %d", len(res.Embeddings))
	}
}

func TestInstructionEmbedder_ErrorPropagation(t *testing.T) {
	innerErr := errors.New("provider down")
	emb := NewInstructionEmbedder(&stubBatchEmbedder{batchErr: innerErr}, "q: ")

	_, err := emb.BatchEmbed(context.Background(), []string{"hello"})
	if !errors.Is(err, innerErr) {
		t.Errorf("expected wrapped inner error, got %v", err)
	}
}

func TestBatchFallback_Success(t *testing.T) {
	inner := &stubEmbedder{result: EmbeddingResult{
		Embedding:    []float32{0.1, 0.2},
		PromptTokens: 5,
		TotalTokens:  5,
	}}

	res, err := BatchFallback(context.Background(), inner, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(res.Embeddings))
	}
	if res.PromptTokens != 15 || res.TotalTokens != 15 {
		t.Errorf("tokens = %d/%d, want 15/15", res.PromptTokens, res.TotalTokens)
	}
	if strings.Join(inner.got, ",") != "a,b,c" {
		t.Errorf("embed order = %v", inner.got)
	}
}

func TestBatchFallback_Error(t *testing.T) {
	inner := &stubEmbedder{err: errors.New("fail")}
	_, err := BatchFallback(context.Background(), inner, []string{"a"})
	if err == nil || !strings.Contains(err.Error(), "fallback embed [0]") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCheckBatch(t *testing.T) {
	ok := BatchEmbeddingResult{Embeddings: [][]float32{{1, 2, 3}, {4, 5, 6}}}
	if err := CheckBatch(2, ok, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := CheckBatch(2, ok, 0); err != nil {
		t.Fatalf("dim 0 should skip check: %v", err)
	}

	err := CheckBatch(3, ok, 3)
	if !errors.Is(err, ErrEmbeddingFailure) {
		t.Errorf("count mismatch: expected ErrEmbeddingFailure, got %v", err)
	}

	err = CheckBatch(2, ok, 4)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("dim mismatch: expected ErrDimensionMismatch, got %v", err)
	}
	if KindOf(err) != KindDimensionMismatch {
		t.Errorf("KindOf = %q", KindOf(err))
	}
}
