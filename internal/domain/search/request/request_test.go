package request

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/kbsearch/internal/domain"
)

func TestNew_Valid(t *testing.T) {
	r, err := New("  animal facts ", "agent1", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Query() != "  animal facts " {
		t.Errorf("Query() = %q, want untrimmed text", r.Query())
	}
	if r.Tenant() != "agent1" {
		t.Errorf("Tenant() = %q", r.Tenant())
	}
	if r.Limit() != 2 {
		t.Errorf("Limit() = %d", r.Limit())
	}
	tenant, ok := r.Scope().Tenant()
	if !ok || tenant != "agent1" {
		t.Errorf("Scope().Tenant() = %q, %v", tenant, ok)
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		tenant string
		limit  int
	}{
		{"empty query", "", "agent1", 5},
		{"whitespace query", " \t\n", "agent1", 5},
		{"empty tenant", "q", "", 5},
		{"zero limit", "q", "agent1", 0},
		{"negative limit", "q", "agent1", -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.query, tt.tenant, tt.limit)
			if !errors.Is(err, domain.ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
}
