package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument signals a caller-supplied value that fails validation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrEmbeddingFailure signals an embedding provider failure or a malformed provider response.
	ErrEmbeddingFailure = errors.New("embedding failure")
	// ErrDimensionMismatch signals that a vector or collection disagrees with the configured dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrIndexFailure signals a vector index failure: connect, create, query or malformed result.
	ErrIndexFailure = errors.New("index failure")
)

// ErrorKind is the stable classification of a retrieval failure.
type ErrorKind string

const (
	// KindNone means no failure.
	KindNone ErrorKind = ""
	// KindInvalidArgument maps ErrInvalidArgument.
	KindInvalidArgument ErrorKind = "invalid_argument"
	// KindEmbeddingFailure maps ErrEmbeddingFailure.
	KindEmbeddingFailure ErrorKind = "embedding_failure"
	// KindDimensionMismatch maps ErrDimensionMismatch.
	KindDimensionMismatch ErrorKind = "dimension_mismatch"
	// KindIndexFailure maps ErrIndexFailure and anything unclassified.
	KindIndexFailure ErrorKind = "index_failure"
)

// KindOf classifies err. Dimension mismatch is checked first because
// providers wrap it together with ErrEmbeddingFailure context.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgument
	case errors.Is(err, ErrDimensionMismatch):
		return KindDimensionMismatch
	case errors.Is(err, ErrEmbeddingFailure):
		return KindEmbeddingFailure
	default:
		return KindIndexFailure
	}
}

// DimensionMismatchError carries both sides of a dimension disagreement.
type DimensionMismatchError struct {
	Subject  string
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: %s has dimension %d, expected %d",
		ErrDimensionMismatch.Error(), e.Subject, e.Actual, e.Expected)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// NewDimensionMismatch creates a dimension mismatch error.
func NewDimensionMismatch(subject string, expected, actual int) error {
	return &DimensionMismatchError{Subject: subject, Expected: expected, Actual: actual}
}

// InvalidArgument wraps a validation message with ErrInvalidArgument.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
