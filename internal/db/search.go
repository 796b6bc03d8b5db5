package db

import "github.com/kailas-cloud/kbsearch/internal/domain/search/filter"

// KNNQuery is the input for vector similarity search.
// The metric is always cosine distance.
type KNNQuery struct {
	Collection   string
	Filters      filter.Expression
	Vector       []float32
	K            int
	ReturnFields []string // nil returns every stored metadata field
}

// SearchResult is the output of a search operation.
// Entries are ordered by ascending distance as delivered by the backend.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single hit. Score is the cosine distance (0 = identical).
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]any
}
