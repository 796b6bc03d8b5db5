package qdrant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kailas-cloud/kbsearch/internal/db"
	"github.com/kailas-cloud/kbsearch/internal/domain"
	"github.com/kailas-cloud/kbsearch/internal/domain/search/filter"
)

type session struct {
	client   pointsAPI
	once     sync.Once
	released atomic.Bool
}

var _ db.Session = (*session)(nil)

func newSession(client pointsAPI) *session {
	return &session{client: client}
}

// Release closes the session client. Only the first call has an effect.
func (s *session) Release() {
	s.once.Do(func() {
		s.released.Store(true)
		_ = s.client.Close()
	})
}

// EnsureCollection reads the collection and creates it with cosine distance
// and a keyword payload index on the tenant field when absent.
func (s *session) EnsureCollection(ctx context.Context, name string, dim int) (db.CollectionInfo, error) {
	if s.released.Load() {
		return db.CollectionInfo{}, db.ErrSessionClosed
	}
	if dim <= 0 {
		return db.CollectionInfo{}, fmt.Errorf("dimension must be positive, got %d", dim)
	}

	existing, err := s.collectionDimension(ctx, name)
	switch {
	case err == nil:
		return db.CollectionInfo{Name: name, Dimension: existing}, nil
	case !errors.Is(err, db.ErrIndexNotFound):
		return db.CollectionInfo{}, err
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		if !isAlreadyExists(err) {
			return db.CollectionInfo{}, &db.Error{Op: db.OpCreateColl, Err: err}
		}
		existing, err = s.collectionDimension(ctx, name)
		if err != nil {
			return db.CollectionInfo{}, err
		}
		return db.CollectionInfo{Name: name, Dimension: existing}, nil
	}

	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: name,
		FieldName:      domain.TenantField,
		FieldType:      qdrant.PtrOf(qdrant.FieldType_FieldTypeKeyword),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil && !isAlreadyExists(err) {
		return db.CollectionInfo{}, &db.Error{Op: db.OpCreateFieldIx, Err: err}
	}

	return db.CollectionInfo{Name: name, Dimension: dim, Created: true}, nil
}

// collectionDimension returns the vector size of a single-vector collection, or db.ErrIndexNotFound.
func (s *session) collectionDimension(ctx context.Context, name string) (int, error) {
	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return 0, db.ErrIndexNotFound
		}
		return 0, &db.Error{Op: db.OpCollInfo, Err: err}
	}
	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if size == 0 {
		return 0, &db.Error{Op: db.OpCollInfo, Err: fmt.Errorf("collection %q has no single unnamed vector", name)}
	}
	return int(size), nil
}

func isAlreadyExists(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	return st.Code() == codes.AlreadyExists || strings.Contains(strings.ToLower(st.Message()), "already exists")
}

// SearchKNN runs a filtered nearest-neighbor query. Qdrant reports cosine
// similarity; entries carry the cosine distance 1 - similarity.
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

	points, err := s.client.Query(ctx, buildQuery(q))
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}

	entries := make([]db.SearchEntry, 0, len(points))
	for _, p := range points {
		entries = append(entries, db.SearchEntry{
			Key:    pointID(p.GetId()),
			Score:  1 - float64(p.GetScore()),
			Fields: extractPayload(p.GetPayload()),
		})
	}
	return &db.SearchResult{Total: len(entries), Entries: entries}, nil
}

func buildQuery(q *db.KNNQuery) *qdrant.QueryPoints {
	req := &qdrant.QueryPoints{
		CollectionName: q.Collection,
		Query:          qdrant.NewQuery(q.Vector...),
		Limit:          qdrant.PtrOf(uint64(q.K)),
		Filter:         buildFilter(q.Filters),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(q.ReturnFields) > 0 {
		req.WithPayload = qdrant.NewWithPayloadInclude(q.ReturnFields...)
	}
	return req
}

// buildFilter renders the conjunction as Must keyword matches.
func buildFilter(expr filter.Expression) *qdrant.Filter {
	if expr.IsEmpty() {
		return nil
	}
	must := make([]*qdrant.Condition, 0, len(expr.Must()))
	for _, cond := range expr.Must() {
		must = append(must, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: cond.Key(),
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: cond.Value()},
					},
				},
			},
		})
	}
	return &qdrant.Filter{Must: must}
}

func pointID(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func extractPayload(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		result[k] = extractValue(v)
	}
	return result
}

func extractValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch val := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_ListValue:
		items := val.ListValue.GetValues()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = extractValue(item)
		}
		return out
	case *qdrant.Value_StructValue:
		return extractPayload(val.StructValue.GetFields())
	default:
		return nil
	}
}
