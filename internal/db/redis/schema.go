package redis

import (
	"errors"
	"strconv"

	"github.com/kailas-cloud/kbsearch/internal/domain"
)

// vectorField is the single vector attribute of a collection index.
const vectorField = "vector"

// indexSchema is the FT.CREATE definition of one collection: hashes under a
// prefix, a case-sensitive tenant TAG and one FLOAT32 cosine HNSW vector.
type indexSchema struct {
	Name        string
	Prefix      string
	Dim         int
	M           int
	EFConstruct int
}

func (l layout) schema(collection string, dim int) indexSchema {
	return indexSchema{
		Name:        l.indexName(collection),
		Prefix:      l.keyPrefix(collection),
		Dim:         dim,
		M:           l.hnswM,
		EFConstruct: l.efConstruct,
	}
}

// createArgs builds FT.CREATE arguments (without the command name).
func (s indexSchema) createArgs() ([]string, error) {
	if s.Name == "" {
		return nil, errors.New("index name is required")
	}
	if s.Prefix == "" {
		return nil, errors.New("key prefix is required")
	}
	if s.Dim <= 0 {
		return nil, errors.New("vector DIM must be positive")
	}

	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(s.Dim),
		"DISTANCE_METRIC", "COSINE",
	}
	if s.M > 0 {
		attrs = append(attrs, "M", strconv.Itoa(s.M))
	}
	if s.EFConstruct > 0 {
		attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(s.EFConstruct))
	}

	args := []string{
		s.Name,
		"ON", "HASH",
		"PREFIX", "1", s.Prefix,
		"SCHEMA",
		domain.TenantField, "TAG", "CASESENSITIVE",
		vectorField, "VECTOR", "HNSW", strconv.Itoa(len(attrs)),
	}
	return append(args, attrs...), nil
}
