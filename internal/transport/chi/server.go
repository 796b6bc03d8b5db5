// Package chi exposes the retrieval core over HTTP as an agent tool.
package chi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/kbsearch/internal/domain/search/outcome"
	"github.com/kailas-cloud/kbsearch/internal/domain/search/request"
	"github.com/kailas-cloud/kbsearch/internal/metrics"
	healthuc "github.com/kailas-cloud/kbsearch/internal/usecase/health"
	"github.com/kailas-cloud/kbsearch/internal/version"
)

const (
	maxQueryLen   = 4096
	maxAgentIDLen = 256
	maxLimit      = 100
	maxBodyBytes  = 64 << 10
)

// Searcher runs one tenant-scoped retrieval.
type Searcher interface {
	Search(ctx context.Context, query, tenantID string, limit int) outcome.Outcome
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Server serves the tool-invocation API.
type Server struct {
	search   Searcher
	health   HealthChecker
	logger   *zap.Logger
	validate *validator.Validate
	metrics  http.Handler
}

// NewServer creates an HTTP API server.
func NewServer(search Searcher, health HealthChecker, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		search:   search,
		health:   health,
		logger:   logger,
		validate: newValidator(),
		metrics:  promhttp.Handler(),
	}
}

// WithMetricsHandler replaces the default promhttp handler.
func (s *Server) WithMetricsHandler(h http.Handler) *Server {
	s.metrics = h
	return s
}

// Routes builds the router with the full middleware chain.
func (s *Server) Routes(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrorCodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorCodeMethodNotAllowed, "method not allowed")
	})

	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", s.metrics)
	r.Route("/v1/tools", func(r chi.Router) {
		r.Get("/", s.ListTools)
		r.Post("/vector_search", s.VectorSearch)
	})
	return r
}

// VectorSearchRequest is the tool invocation body.
// Empty query or agent_id are left to the retrieval core, which answers with an error string.
type VectorSearchRequest struct {
	Query   string `json:"query" validate:"max=4096"`
	AgentID string `json:"agent_id" validate:"max=256"`
	Limit   *int   `json:"limit,omitempty" validate:"omitempty,lte=100"`
}

// Match is one ranked chunk in a successful response.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// VectorSearchResponse carries the agent-facing string plus its structured form.
type VectorSearchResponse struct {
	Result    string  `json:"result"`
	Outcome   string  `json:"outcome"`
	ErrorKind string  `json:"error_kind,omitempty"`
	Matches   []Match `json:"matches"`
}

// VectorSearch handles POST /v1/tools/vector_search.
// Retrieval failures are reported in the body with status 200; only malformed requests get 4xx.
func (s *Server) VectorSearch(w http.ResponseWriter, r *http.Request) {
	var req VectorSearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Code:    ErrorCodeValidationFailed,
			Message: "Validation failed",
			Fields:  validationFields(err),
		})
		return
	}

	limit := request.DefaultLimit
	if req.Limit != nil && *req.Limit != 0 {
		limit = *req.Limit
	}

	out := s.search.Search(r.Context(), req.Query, req.AgentID, limit)
	writeJSON(w, http.StatusOK, toResponse(out))
}

// ListTools handles GET /v1/tools.
func (s *Server) ListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": []ToolDescriptor{vectorSearchDescriptor()},
	})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	for component, msg := range report.Errors {
		s.logger.Warn("health check failed", zap.String("component", component), zap.String("error", msg))
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:  string(report.Status),
		Version: version.Version,
		Checks:  checks,
	})
}

func toResponse(out outcome.Outcome) VectorSearchResponse {
	resp := VectorSearchResponse{
		Result:    out.String(),
		Outcome:   out.Kind().String(),
		ErrorKind: string(out.ErrorKind()),
		Matches:   make([]Match, 0, len(out.Entries())),
	}
	for _, e := range out.Entries() {
		resp.Matches = append(resp.Matches, Match{
			ID:       e.ID,
			Score:    e.Score,
			Text:     e.Text,
			Metadata: e.Metadata,
		})
	}
	return resp
}
