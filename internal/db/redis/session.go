package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/kbsearch/internal/db"
)

var errNoDimension = errors.New("vector dimension not reported by FT.INFO")

// commander is the part of rueidis shared by Client and DedicatedClient.
type commander interface {
	B() rueidis.Builder
	Do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult
}

// session owns one dedicated connection until Release.
type session struct {
	cmd      commander
	cancel   func()
	once     sync.Once
	released atomic.Bool
	layout   layout
}

var _ db.Session = (*session)(nil)

func newSession(cmd commander, cancel func(), l layout) *session {
	return &session{cmd: cmd, cancel: cancel, layout: l}
}

// Release returns the dedicated connection to the pool. Only the first call has an effect.
func (s *session) Release() {
	s.once.Do(func() {
		s.released.Store(true)
		if s.cancel != nil {
			s.cancel()
		}
	})
}

func (s *session) do(ctx context.Context, build func(b rueidis.Builder) rueidis.Completed) rueidis.RedisResult {
	return s.cmd.Do(ctx, build(s.cmd.B()))
}

// EnsureCollection reads the collection index via FT.INFO and creates it when absent.
func (s *session) EnsureCollection(ctx context.Context, name string, dim int) (db.CollectionInfo, error) {
	if s.released.Load() {
		return db.CollectionInfo{}, db.ErrSessionClosed
	}

	index := s.layout.indexName(name)
	existing, err := s.indexDimension(ctx, index)
	switch {
	case err == nil:
		return db.CollectionInfo{Name: name, Dimension: existing}, nil
	case !errors.Is(err, db.ErrIndexNotFound):
		return db.CollectionInfo{}, err
	}

	args, err := s.layout.schema(name, dim).createArgs()
	if err != nil {
		return db.CollectionInfo{}, fmt.Errorf("index schema: %w", err)
	}

	createErr := s.do(ctx, func(b rueidis.Builder) rueidis.Completed {
		return b.Arbitrary("FT.CREATE").Args(args...).Build()
	}).Error()
	if createErr == nil {
		return db.CollectionInfo{Name: name, Dimension: dim, Created: true}, nil
	}
	if !isIndexExists(createErr) {
		return db.CollectionInfo{}, &db.Error{Op: db.OpCreateIndex, Err: createErr}
	}

	// Another caller created it between FT.INFO and FT.CREATE.
	existing, err = s.indexDimension(ctx, index)
	if err != nil {
		return db.CollectionInfo{}, err
	}
	return db.CollectionInfo{Name: name, Dimension: existing}, nil
}

// indexDimension returns the vector DIM of index, or db.ErrIndexNotFound.
func (s *session) indexDimension(ctx context.Context, index string) (int, error) {
	raw, err := s.do(ctx, func(b rueidis.Builder) rueidis.Completed {
		return b.Arbitrary("FT.INFO").Args(index).Build()
	}).ToArray()
	if err != nil {
		if isUnknownIndex(err) {
			return 0, db.ErrIndexNotFound
		}
		return 0, &db.Error{Op: db.OpIndexInfo, Err: err}
	}

	dim, ok := findDimension(raw)
	if !ok {
		return 0, &db.Error{Op: db.OpIndexInfo, Err: errNoDimension}
	}
	return dim, nil
}

// findDimension walks the nested FT.INFO reply looking for the vector dimension.
// Redis reports it as "dim" inside the attribute list, valkey-search as "dimensions".
func findDimension(raw []rueidis.RedisMessage) (int, bool) {
	for i := range raw {
		if key, err := raw[i].ToString(); err == nil && i+1 < len(raw) {
			switch strings.ToLower(key) {
			case "dim", "dimension", "dimensions":
				if n, ok := messageInt(raw[i+1]); ok && n > 0 {
					return n, true
				}
			}
		}
		if nested, err := raw[i].ToArray(); err == nil {
			if n, ok := findDimension(nested); ok {
				return n, true
			}
		}
	}
	return 0, false
}

func messageInt(m rueidis.RedisMessage) (int, bool) {
	if n, err := m.AsInt64(); err == nil {
		return int(n), true
	}
	if s, err := m.ToString(); err == nil {
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
	}
	return 0, false
}
