package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kailas-cloud/kbsearch/internal/db"
	"github.com/kailas-cloud/kbsearch/internal/domain/search/filter"
)

// --- fakes ---

type fakeRow struct {
	vals []any
	err  error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.vals)
}

type fakeRows struct {
	rows   [][]any
	i      int
	err    error
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.i-1], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error { return assign(dest, r.rows[r.i-1]) }

func assign(dest, vals []any) error {
	if len(dest) != len(vals) {
		return fmt.Errorf("scan: %d dest for %d values", len(dest), len(vals))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int32:
			*p = vals[i].(int32)
		case *string:
			*p = vals[i].(string)
		case *float64:
			*p = vals[i].(float64)
		default:
			return fmt.Errorf("unsupported dest %T", d)
		}
	}
	return nil
}

type fakeConn struct {
	dims      []fakeRow // consumed in order by QueryRow
	execErrs  map[string]error
	execs     []string
	rows      *fakeRows
	queryErr  error
	lastSQL   string
	lastArgs  []any
	dimCalled int
}

func (c *fakeConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	c.execs = append(c.execs, sql)
	for frag, err := range c.execErrs {
		if strings.Contains(sql, frag) {
			return pgconn.CommandTag{}, err
		}
	}
	return pgconn.CommandTag{}, nil
}

func (c *fakeConn) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	c.lastSQL, c.lastArgs = sql, args
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	return c.rows, nil
}

func (c *fakeConn) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	row := c.dims[c.dimCalled]
	c.dimCalled++
	return row
}

func tenantScope(t *testing.T, tenant string) filter.Expression {
	t.Helper()
	e, err := filter.ForTenant(tenant)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// --- EnsureCollection ---

func TestEnsureCollection_Existing(t *testing.T) {
	conn := &fakeConn{dims: []fakeRow{{vals: []any{int32(1024)}}}}
	s := newSession(conn, nil, "vecs")

	info, err := s.EnsureCollection(context.Background(), "embeddings", 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Dimension != 1024 || info.Created {
		t.Errorf("info = %+v", info)
	}
	if len(conn.execs) != 0 {
		t.Errorf("unexpected DDL: %v", conn.execs)
	}
}

func TestEnsureCollection_CreatesWhenMissing(t *testing.T) {
	conn := &fakeConn{dims: []fakeRow{
		{err: pgx.ErrNoRows},
		{vals: []any{int32(1024)}},
	}}
	s := newSession(conn, nil, "vecs")

	info, err := s.EnsureCollection(context.Background(), "embeddings", 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !info.Created || info.Dimension != 1024 {
		t.Errorf("info = %+v", info)
	}
	ddl := strings.Join(conn.execs, ";")
	if !strings.Contains(ddl, `CREATE TABLE IF NOT EXISTS "vecs"."embeddings"`) ||
		!strings.Contains(ddl, "vec vector(1024)") {
		t.Errorf("ddl = %s", ddl)
	}
	if !strings.Contains(ddl, `((metadata->>'agentId'))`) {
		t.Errorf("missing tenant index: %s", ddl)
	}
}

func TestEnsureCollection_ConcurrentCreateIsNotAnError(t *testing.T) {
	conn := &fakeConn{
		dims: []fakeRow{
			{err: pgx.ErrNoRows},
			{vals: []any{int32(1024)}},
		},
		execErrs: map[string]error{
			"CREATE TABLE": &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"},
		},
	}
	s := newSession(conn, nil, "vecs")

	info, err := s.EnsureCollection(context.Background(), "embeddings", 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Dimension != 1024 {
		t.Errorf("info = %+v", info)
	}
}

func TestEnsureCollection_ReportsExistingDimension(t *testing.T) {
	conn := &fakeConn{dims: []fakeRow{{vals: []any{int32(768)}}}}
	s := newSession(conn, nil, "vecs")

	info, err := s.EnsureCollection(context.Background(), "embeddings", 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Dimension != 768 {
		t.Errorf("Dimension = %d, want 768", info.Dimension)
	}
}

func TestEnsureCollection_CreateFails(t *testing.T) {
	conn := &fakeConn{
		dims:     []fakeRow{{err: pgx.ErrNoRows}},
		execErrs: map[string]error{"CREATE EXTENSION": errors.New("permission denied")},
	}
	s := newSession(conn, nil, "vecs")

	_, err := s.EnsureCollection(context.Background(), "embeddings", 1024)
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpCreateTable {
		t.Fatalf("expected CREATE TABLE db.Error, got %v", err)
	}
}

func TestEnsureCollection_CatalogError(t *testing.T) {
	conn := &fakeConn{dims: []fakeRow{{err: errors.New("connection refused")}}}
	s := newSession(conn, nil, "vecs")

	_, err := s.EnsureCollection(context.Background(), "embeddings", 1024)
	var dbErr *db.Error
	if !errors.As(err, &dbErr) {
		t.Fatalf("expected db.Error, got %v", err)
	}
}

// --- SearchKNN ---

func TestSearchKNN_TenantScopedQuery(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{rows: [][]any{
		{"c1", 0.05, `{"text":"cats are mammals","agentId":"agent1","chunk_index":0}`},
		{"c2", 0.12, `{"text":"dogs bark","agentId":"agent1"}`},
	}}}
	s := newSession(conn, nil, "vecs")

	res, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		Collection: "embeddings",
		Filters:    tenantScope(t, "agent1"),
		Vector:     []float32{0.5, -1},
		K:          2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantSQL := `SELECT id, vec <=> $1::vector AS distance, metadata::text FROM "vecs"."embeddings" ` +
		`WHERE metadata->>$2::text = $3 ORDER BY distance, id LIMIT $4`
	if conn.lastSQL != wantSQL {
		t.Errorf("sql =\n%s\nwant\n%s", conn.lastSQL, wantSQL)
	}
	wantArgs := []any{"[0.5,-1]", "agentId", "agent1", 2}
	if fmt.Sprint(conn.lastArgs) != fmt.Sprint(wantArgs) {
		t.Errorf("args = %v, want %v", conn.lastArgs, wantArgs)
	}

	if len(res.Entries) != 2 || res.Entries[0].Key != "c1" || res.Entries[1].Score != 0.12 {
		t.Errorf("entries = %+v", res.Entries)
	}
	if res.Entries[0].Fields["text"] != "cats are mammals" {
		t.Errorf("fields = %v", res.Entries[0].Fields)
	}
	if !conn.rows.closed {
		t.Error("rows not closed")
	}
}

func TestSearchKNN_NoRows(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{}}
	s := newSession(conn, nil, "vecs")

	res, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		Collection: "embeddings", Filters: tenantScope(t, "a"), Vector: []float32{1}, K: 5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res == nil || len(res.Entries) != 0 {
		t.Errorf("expected empty non-nil result, got %+v", res)
	}
}

func TestSearchKNN_HugeLimitDoesNotPreallocate(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{rows: [][]any{
		{"c1", 0.05, `{"text":"cats are mammals","agentId":"a"}`},
	}}}
	s := newSession(conn, nil, "vecs")

	res, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		Collection: "embeddings", Filters: tenantScope(t, "a"), Vector: []float32{1}, K: math.MaxInt32 * 4,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("entries = %+v", res.Entries)
	}
	if c := cap(res.Entries); c > maxPrealloc {
		t.Errorf("cap = %d, want <= %d", c, maxPrealloc)
	}
}

func TestSearchKNN_QueryError(t *testing.T) {
	conn := &fakeConn{queryErr: errors.New("statement timeout")}
	s := newSession(conn, nil, "vecs")

	_, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		Collection: "embeddings", Filters: tenantScope(t, "a"), Vector: []float32{1}, K: 5,
	})
	var dbErr *db.Error
	if !errors.As(err, &dbErr) || dbErr.Op != db.OpSelect {
		t.Fatalf("expected SELECT db.Error, got %v", err)
	}
}

func TestSearchKNN_RowsError(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{err: errors.New("conn closed")}}
	s := newSession(conn, nil, "vecs")

	_, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		Collection: "embeddings", Filters: tenantScope(t, "a"), Vector: []float32{1}, K: 5,
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestSearchKNN_BadMetadata(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{rows: [][]any{{"c1", 0.1, `not json`}}}}
	s := newSession(conn, nil, "vecs")

	_, err := s.SearchKNN(context.Background(), &db.KNNQuery{
		Collection: "embeddings", Filters: tenantScope(t, "a"), Vector: []float32{1}, K: 5,
	})
	if err == nil || !strings.Contains(err.Error(), `metadata of "c1"`) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSession_ReleaseOnce(t *testing.T) {
	calls := 0
	s := newSession(&fakeConn{}, func() { calls++ }, "vecs")
	s.Release()
	s.Release()
	if calls != 1 {
		t.Errorf("release called %d times", calls)
	}
	if _, err := s.SearchKNN(context.Background(), &db.KNNQuery{}); !errors.Is(err, db.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestVectorLiteral(t *testing.T) {
	if got := vectorLiteral([]float32{0.25, 1, -3.5}); got != "[0.25,1,-3.5]" {
		t.Errorf("vectorLiteral = %q", got)
	}
	if got := vectorLiteral(nil); got != "[]" {
		t.Errorf("vectorLiteral(nil) = %q", got)
	}
}

func TestIsCreateRace(t *testing.T) {
	if !isCreateRace(&pgconn.PgError{Code: "42P07"}) {
		t.Error("duplicate_table should be a race")
	}
	if isCreateRace(&pgconn.PgError{Code: "42501"}) {
		t.Error("insufficient_privilege is not a race")
	}
	if isCreateRace(errors.New("plain")) {
		t.Error("plain errors are not races")
	}
}
