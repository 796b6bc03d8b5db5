package qdrant

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/kailas-cloud/kbsearch/internal/db"
)

// Compile-time check: Store implements db.Connector.
var _ db.Connector = (*Store)(nil)

// Config holds Qdrant gRPC connection parameters.
type Config struct {
	Host           string
	Port           int // gRPC port, default 6334
	APIKey         string
	UseTLS         bool
	MaxMessageSize int
}

// pointsAPI is the part of *qdrant.Client a session uses.
type pointsAPI interface {
	GetCollectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	CreateFieldIndex(ctx context.Context, req *qdrant.CreateFieldIndexCollection) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// Store implements db.Connector over Qdrant. A long-lived client serves health
// checks; every session dials its own client and closes it on Release.
type Store struct {
	health *qdrant.Client
	dial   func() (pointsAPI, error)
}

// NewStore creates the health client. Sessions dial on Connect.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	healthCfg, sessionCfg := clientConfigs(cfg)

	health, err := qdrant.NewClient(healthCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &Store{
		health: health,
		dial: func() (pointsAPI, error) {
			c, err := qdrant.NewClient(sessionCfg)
			if err != nil {
				return nil, err //nolint:wrapcheck // wrapped by Connect
			}
			return c, nil
		},
	}, nil
}

// clientConfigs returns the health client config, which runs the server
// version check once, and the per-session dial config, which skips it.
func clientConfigs(cfg Config) (health, session *qdrant.Config) {
	port := cfg.Port
	if port == 0 {
		port = 6334
	}
	maxMsg := cfg.MaxMessageSize
	if maxMsg <= 0 {
		maxMsg = 50 * 1024 * 1024
	}

	qcfg := &qdrant.Config{
		Host:   cfg.Host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(maxMsg),
				grpc.MaxCallSendMsgSize(maxMsg),
			),
		},
	}
	if !cfg.UseTLS {
		qcfg.GrpcOptions = append(qcfg.GrpcOptions, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	sess := *qcfg
	sess.GrpcOptions = append([]grpc.DialOption(nil), qcfg.GrpcOptions...)
	sess.SkipCompatibilityCheck = true
	return qcfg, &sess
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.health.HealthCheck(ctx); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Connect dials a client owned by one session.
func (s *Store) Connect(ctx context.Context) (db.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &db.Error{Op: db.OpConnect, Err: err}
	}
	client, err := s.dial()
	if err != nil {
		return nil, &db.Error{Op: db.OpConnect, Err: err}
	}
	return newSession(client), nil
}

// Close closes the health client.
func (s *Store) Close() {
	if s.health != nil {
		_ = s.health.Close()
	}
}
