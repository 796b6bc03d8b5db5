// Package outcome models the result of one retrieval call as a tagged variant
// and renders it to the plain-text contract agents consume.
package outcome

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/kbsearch/internal/domain"
)

// Kind tags an Outcome.
type Kind int

// Empty is declared first so the zero Outcome is Empty.
const (
	// Empty means the tenant-filtered index returned no matches.
	Empty Kind = iota
	// Success carries at least one entry.
	Success
	// Failure carries an error kind and message.
	Failure
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Empty:
		return "empty"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// Rendered prefixes. Callers tell outcomes apart by these.
const (
	SuccessPrefix = "Relevant context:"
	EmptyMessage  = "No relevant context found."
	FailurePrefix = "Error during vector search:"
)

// Entry is one ranked match.
type Entry struct {
	Score    float64
	Text     string
	ID       string
	Metadata map[string]any
}

// Outcome is the result of one search call. The zero value is an Empty outcome.
type Outcome struct {
	kind      Kind
	entries   []Entry
	errorKind domain.ErrorKind
	message   string
}

// NewSuccess creates a Success outcome. An empty entries slice yields Empty.
func NewSuccess(entries []Entry) Outcome {
	if len(entries) == 0 {
		return NewEmpty()
	}
	return Outcome{kind: Success, entries: entries}
}

// NewEmpty creates an Empty outcome.
func NewEmpty() Outcome {
	return Outcome{kind: Empty}
}

// NewFailure classifies err and creates a Failure outcome.
func NewFailure(err error) Outcome {
	kind := domain.KindOf(err)
	if kind == domain.KindNone {
		kind = domain.KindIndexFailure
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Outcome{kind: Failure, errorKind: kind, message: msg}
}

// Kind returns the outcome tag.
func (o Outcome) Kind() Kind { return o.kind }

// Entries returns the ranked entries, closest first. Nil unless Success.
func (o Outcome) Entries() []Entry { return o.entries }

// ErrorKind returns the failure classification. Empty unless Failure.
func (o Outcome) ErrorKind() domain.ErrorKind { return o.errorKind }

// Message returns the failure message. Empty unless Failure.
func (o Outcome) Message() string { return o.message }

// IsFailure reports whether the outcome is a Failure.
func (o Outcome) IsFailure() bool { return o.kind == Failure }

// String renders the outcome in the agent-facing text format.
func (o Outcome) String() string {
	switch o.kind {
	case Success:
		lines := make([]string, len(o.entries))
		for i, e := range o.entries {
			lines[i] = fmt.Sprintf("- %s (score: %.4f)", e.Text, e.Score)
		}
		return SuccessPrefix + "\n" + strings.Join(lines, "\n")
	case Failure:
		return FailurePrefix + " " + o.message
	default:
		return EmptyMessage
	}
}
