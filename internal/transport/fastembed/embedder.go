// Package fastembed embeds queries locally with ONNX models, no network round-trip.
package fastembed

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	fastembed "github.com/anush008/fastembed-go"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kbsearch/internal/domain"
	"github.com/kailas-cloud/kbsearch/internal/metrics"
)

const (
	providerName     = "fastembed"
	defaultMaxLength = 512
)

// Config holds the local embedding settings.
type Config struct {
	// Model accepts either a HuggingFace name (BAAI/bge-small-en-v1.5) or a fastembed name.
	Model string
	// Dimensions must equal the model's native size when set.
	Dimensions int
	CacheDir   string
	MaxLength  int
	Logger     *zap.Logger
}

// model is the slice of *fastembed.FlagEmbedding the embedder relies on.
type model interface {
	QueryEmbed(input string) ([]float32, error)
	Destroy() error
}

// Embedder implements domain.BatchEmbedder over fastembed-go.
type Embedder struct {
	mu        sync.RWMutex
	model     model
	name      string
	dimension int
	logger    *zap.Logger
}

var modelAliases = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"BAAI/bge-small-zh-v1.5":                 fastembed.BGESmallZH,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

var modelDimensions = map[fastembed.EmbeddingModel]int{
	fastembed.BGESmallENV15: 384,
	fastembed.BGESmallEN:    384,
	fastembed.BGEBaseENV15:  768,
	fastembed.BGEBaseEN:     768,
	fastembed.BGESmallZH:    512,
	fastembed.AllMiniLML6V2: 384,
}

// resolveModel maps a configured name to a fastembed model and its native dimension.
func resolveModel(name string) (fastembed.EmbeddingModel, int, error) {
	if name == "" {
		return fastembed.BGESmallENV15, modelDimensions[fastembed.BGESmallENV15], nil
	}
	m, ok := modelAliases[name]
	if !ok {
		m = fastembed.EmbeddingModel(name)
	}
	dim, known := modelDimensions[m]
	if !known {
		return "", 0, domain.InvalidArgument("unsupported fastembed model %q", name)
	}
	return m, dim, nil
}

// NewEmbedder loads (and on first use downloads) the ONNX model.
func NewEmbedder(cfg *Config) (*Embedder, error) {
	m, dim, err := resolveModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	if cfg.Dimensions > 0 && cfg.Dimensions != dim {
		return nil, domain.NewDimensionMismatch("fastembed model "+string(m), cfg.Dimensions, dim)
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "local_cache")
	}
	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = defaultMaxLength
	}
	showProgress := false

	flag, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                m,
		CacheDir:             cacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("init fastembed %s: %w", m, err)
	}

	return newWithModel(flag, string(m), dim, cfg.Logger), nil
}

func newWithModel(m model, name string, dim int, log *zap.Logger) *Embedder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Embedder{model: m, name: name, dimension: dim, logger: log}
}

// Dimension returns the model's native vector size.
func (e *Embedder) Dimension() int { return e.dimension }

// BatchEmbed embeds each text with the model's query prefix.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, domain.InvalidArgument("no texts to embed")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.model == nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("%w: fastembed model closed", domain.ErrEmbeddingFailure)
	}

	start := time.Now()
	out := domain.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts))}
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			e.recordError("canceled")
			return domain.BatchEmbeddingResult{}, fmt.Errorf("%w: %w", domain.ErrEmbeddingFailure, err)
		}
		vec, err := e.model.QueryEmbed(text)
		if err != nil {
			e.recordError("model_error")
			return domain.BatchEmbeddingResult{}, fmt.Errorf("%w: fastembed: %w", domain.ErrEmbeddingFailure, err)
		}
		out.Embeddings[i] = vec
	}

	if err := domain.CheckBatch(len(texts), out, e.dimension); err != nil {
		e.recordError("dimension_mismatch")
		return domain.BatchEmbeddingResult{}, err
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.name, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(providerName, e.name).Observe(time.Since(start).Seconds())
	return out, nil
}

// HealthCheck reports whether the model is still loaded.
func (e *Embedder) HealthCheck(_ context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.model == nil {
		return fmt.Errorf("%w: fastembed model closed", domain.ErrEmbeddingFailure)
	}
	return nil
}

// Close releases the ONNX session. Safe to call twice.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil
	}
	err := e.model.Destroy()
	e.model = nil
	if err != nil {
		return fmt.Errorf("destroy fastembed model: %w", err)
	}
	e.logger.Debug("fastembed model released", zap.String("model", e.name))
	return nil
}

func (e *Embedder) recordError(errorType string) {
	metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.name, "error").Inc()
	metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, e.name, errorType).Inc()
}
