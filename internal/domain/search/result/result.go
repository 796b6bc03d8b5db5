package result

import (
	"fmt"

	"github.com/kailas-cloud/kbsearch/internal/domain"
)

// Result is a single index hit. Score is the cosine distance: lower is closer.
type Result struct {
	id       string
	score    float64
	metadata map[string]any
}

// New creates a search result.
func New(id string, score float64, metadata map[string]any) Result {
	return Result{id: id, score: score, metadata: metadata}
}

// ID returns the chunk identifier.
func (r *Result) ID() string { return r.id }

// Score returns the cosine distance.
func (r *Result) Score() float64 { return r.score }

// Metadata returns the stored chunk metadata.
func (r *Result) Metadata() map[string]any { return r.metadata }

// Text returns the chunk text. A hit without a string text field is malformed.
func (r *Result) Text() (string, error) {
	raw, ok := r.metadata[domain.TextField]
	if !ok {
		return "", fmt.Errorf("%w: hit %q has no %q metadata", domain.ErrIndexFailure, r.id, domain.TextField)
	}
	text, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: hit %q has non-string %q metadata (%T)",
			domain.ErrIndexFailure, r.id, domain.TextField, raw)
	}
	return text, nil
}

// Tenant returns the stored owner of the chunk.
func (r *Result) Tenant() string {
	s, _ := r.metadata[domain.TenantField].(string)
	return s
}
