package kbsearch

import "github.com/kailas-cloud/kbsearch/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidArgument   = domain.ErrInvalidArgument
	ErrEmbeddingFailure  = domain.ErrEmbeddingFailure
	ErrDimensionMismatch = domain.ErrDimensionMismatch
	ErrIndexFailure      = domain.ErrIndexFailure
)

// sentinelFor maps a failure classification back to its sentinel.
func sentinelFor(kind domain.ErrorKind) error {
	switch kind {
	case domain.KindInvalidArgument:
		return ErrInvalidArgument
	case domain.KindEmbeddingFailure:
		return ErrEmbeddingFailure
	case domain.KindDimensionMismatch:
		return ErrDimensionMismatch
	default:
		return ErrIndexFailure
	}
}
