package request

import (
	"strings"

	"github.com/kailas-cloud/kbsearch/internal/domain"
	"github.com/kailas-cloud/kbsearch/internal/domain/search/filter"
)

// DefaultLimit is the number of matches returned when the caller does not ask for a count.
const DefaultLimit = 5

// Request is a validated retrieval query scoped to one tenant.
type Request struct {
	query  string
	tenant string
	limit  int
	scope  filter.Expression
}

// New validates search parameters. The query must be non-empty after trimming,
// the tenant non-empty and the limit positive. The query text is passed on untrimmed.
func New(query, tenantID string, limit int) (Request, error) {
	if strings.TrimSpace(query) == "" {
		return Request{}, domain.InvalidArgument("query must not be empty")
	}
	if tenantID == "" {
		return Request{}, domain.InvalidArgument("agent id must not be empty")
	}
	if limit <= 0 {
		return Request{}, domain.InvalidArgument("limit must be positive, got %d", limit)
	}

	scope, err := filter.ForTenant(tenantID)
	if err != nil {
		return Request{}, domain.InvalidArgument("tenant filter: %v", err)
	}

	return Request{query: query, tenant: tenantID, limit: limit, scope: scope}, nil
}

// Query returns the search query text.
func (r *Request) Query() string { return r.query }

// Tenant returns the tenant id.
func (r *Request) Tenant() string { return r.tenant }

// Limit returns the maximum number of matches.
func (r *Request) Limit() int { return r.limit }

// Scope returns the tenant filter the query must run under.
func (r *Request) Scope() filter.Expression { return r.scope }
