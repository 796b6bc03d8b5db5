package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/kbsearch/internal/db"
)

// Compile-time check: Store implements db.Connector.
var _ db.Connector = (*Store)(nil)

// Config holds connection and index layout parameters for a Redis or Valkey store.
type Config struct {
	Addrs    []string
	Username string
	Password string
	DB       int

	// KeyPrefix namespaces every index and hash, e.g. "kb:".
	KeyPrefix string
	// HNSWM and HNSWEFConstruct tune indexes created by this store. Zero keeps server defaults.
	HNSWM           int
	HNSWEFConstruct int
}

// Store implements db.Connector via rueidis for Redis 8+ and Valkey with valkey-search.
type Store struct {
	client rueidis.Client
	layout layout
}

// NewStore creates a Redis store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH and FT.INFO parsing expects RESP2 arrays
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Store{client: client, layout: newLayout(cfg)}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Connect pins a pooled connection for the exclusive use of one session.
// The connection goes back to the pool on Release.
func (s *Store) Connect(ctx context.Context) (db.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &db.Error{Op: db.OpConnect, Err: err}
	}
	dc, cancel := s.client.Dedicate()
	return newSession(dc, cancel, s.layout), nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// layout derives key and index names for a collection.
type layout struct {
	prefix      string
	hnswM       int
	efConstruct int
}

func newLayout(cfg Config) layout {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "kb:"
	}
	return layout{prefix: prefix, hnswM: cfg.HNSWM, efConstruct: cfg.HNSWEFConstruct}
}

// indexName returns the FT index name, e.g. "kb:embeddings:idx".
func (l layout) indexName(collection string) string {
	return l.prefix + collection + ":idx"
}

// keyPrefix returns the hash key prefix, e.g. "kb:embeddings:".
func (l layout) keyPrefix(collection string) string {
	return l.prefix + collection + ":"
}

// isRedisErr checks if err is a Redis server error containing substr (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}

// isUnknownIndex matches both the Redis ("Unknown index name") and
// valkey-search ("Index with name ... not found") replies.
func isUnknownIndex(err error) bool {
	return isRedisErr(err, "unknown index name") ||
		isRedisErr(err, "no such index") ||
		(isRedisErr(err, "index with name") && isRedisErr(err, "not found"))
}

func isIndexExists(err error) bool {
	return isRedisErr(err, "already exists")
}
