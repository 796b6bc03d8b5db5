package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kailas-cloud/kbsearch/internal/db"
	"github.com/kailas-cloud/kbsearch/internal/domain"
	"github.com/kailas-cloud/kbsearch/internal/domain/search/filter"
)

// Postgres error codes raised by concurrent CREATE ... IF NOT EXISTS.
const (
	codeUniqueViolation = "23505"
	codeDuplicateTable  = "42P07"
	codeDuplicateSchema = "42P06"
)

type session struct {
	conn     querier
	release  func()
	once     sync.Once
	released atomic.Bool
	schema   string
}

var _ db.Session = (*session)(nil)

func newSession(conn querier, release func(), schema string) *session {
	return &session{conn: conn, release: release, schema: schema}
}

// Release returns the connection to the pool. Only the first call has an effect.
func (s *session) Release() {
	s.once.Do(func() {
		s.released.Store(true)
		if s.release != nil {
			s.release()
		}
	})
}

func (s *session) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

// EnsureCollection reads the vec column dimension and creates the table when absent.
func (s *session) EnsureCollection(ctx context.Context, name string, dim int) (db.CollectionInfo, error) {
	if s.released.Load() {
		return db.CollectionInfo{}, db.ErrSessionClosed
	}
	if dim <= 0 {
		return db.CollectionInfo{}, fmt.Errorf("dimension must be positive, got %d", dim)
	}

	existing, err := s.tableDimension(ctx, name)
	switch {
	case err == nil:
		return db.CollectionInfo{Name: name, Dimension: existing}, nil
	case !errors.Is(err, db.ErrIndexNotFound):
		return db.CollectionInfo{}, err
	}

	for _, stmt := range createStatements(s.schema, name, dim) {
		if _, err := s.conn.Exec(ctx, stmt); err != nil && !isCreateRace(err) {
			return db.CollectionInfo{}, &db.Error{Op: db.OpCreateTable, Err: err}
		}
	}

	// IF NOT EXISTS may have yielded to a concurrent creator; trust the catalog.
	existing, err = s.tableDimension(ctx, name)
	if err != nil {
		return db.CollectionInfo{}, err
	}
	return db.CollectionInfo{Name: name, Dimension: existing, Created: existing == dim}, nil
}

const dimensionSQL = `
SELECT a.atttypmod
FROM pg_attribute a
JOIN pg_class c ON c.oid = a.attrelid
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE n.nspname = $1 AND c.relname = $2 AND a.attname = 'vec' AND NOT a.attisdropped`

// tableDimension returns the declared vector(D) of the collection table, or db.ErrIndexNotFound.
func (s *session) tableDimension(ctx context.Context, name string) (int, error) {
	var typmod int32
	err := s.conn.QueryRow(ctx, dimensionSQL, s.schema, name).Scan(&typmod)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, db.ErrIndexNotFound
	}
	if err != nil {
		return 0, &db.Error{Op: db.OpTableInfo, Err: err}
	}
	if typmod <= 0 {
		return 0, &db.Error{Op: db.OpTableInfo, Err: fmt.Errorf("column vec of %q has no declared dimension", name)}
	}
	return int(typmod), nil
}

func createStatements(schema, name string, dim int) []string {
	table := pgx.Identifier{schema, name}.Sanitize()
	tenantIdx := pgx.Identifier{name + "_" + domain.TenantField + "_idx"}.Sanitize()
	return []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		"CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{schema}.Sanitize(),
		fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (id text PRIMARY KEY, vec vector(%d) NOT NULL, metadata jsonb NOT NULL DEFAULT '{}'::jsonb)",
			table, dim),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s ((metadata->>'%s'))", tenantIdx, table, domain.TenantField),
	}
}

func isCreateRace(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeUniqueViolation, codeDuplicateTable, codeDuplicateSchema:
		return true
	}
	return false
}

// maxPrealloc bounds the result slice allocated before any row is read.
const maxPrealloc = 64

// SearchKNN orders by cosine distance (the <=> operator) then id, so ties are stable.
func (s *session) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if s.released.Load() {
		return nil, db.ErrSessionClosed
	}
	if q.Collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	sql, args := buildKNNQuery(s.table(q.Collection), q)
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, &db.Error{Op: db.OpSelect, Err: err}
	}
	defer rows.Close()

	entries := make([]db.SearchEntry, 0, min(q.K, maxPrealloc))
	for rows.Next() {
		var (
			id       string
			distance float64
			metadata string
		)
		if err := rows.Scan(&id, &distance, &metadata); err != nil {
			return nil, &db.Error{Op: db.OpSelect, Err: err}
		}
		fields, err := decodeMetadata(metadata)
		if err != nil {
			return nil, fmt.Errorf("metadata of %q: %w", id, err)
		}
		entries = append(entries, db.SearchEntry{Key: id, Score: distance, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpSelect, Err: err}
	}

	return &db.SearchResult{Total: len(entries), Entries: entries}, nil
}

func buildKNNQuery(table string, q *db.KNNQuery) (string, []any) {
	args := []any{vectorLiteral(q.Vector)}
	where := buildWhere(q.Filters, &args)
	args = append(args, q.K)

	var sb strings.Builder
	sb.WriteString("SELECT id, vec <=> $1::vector AS distance, metadata::text FROM ")
	sb.WriteString(table)
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	sb.WriteString(" ORDER BY distance, id LIMIT $")
	sb.WriteString(strconv.Itoa(len(args)))
	return sb.String(), args
}

// buildWhere renders the conjunction as metadata->>$k = $v predicates, appending to args.
func buildWhere(expr filter.Expression, args *[]any) string {
	if expr.IsEmpty() {
		return ""
	}
	parts := make([]string, 0, len(expr.Must()))
	for _, cond := range expr.Must() {
		*args = append(*args, cond.Key(), cond.Value())
		n := len(*args)
		parts = append(parts, fmt.Sprintf("metadata->>$%d::text = $%d", n-1, n))
	}
	return strings.Join(parts, " AND ")
}

// vectorLiteral renders v in pgvector text form: [0.1,0.2,...].
func vectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.Grow(len(v) * 10)
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

func decodeMetadata(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}
