package filter

import (
	"fmt"

	"github.com/kailas-cloud/kbsearch/internal/domain"
)

// MaxConditions is the maximum number of conditions in one expression.
const MaxConditions = 32

// Expression is a conjunction of exact-match conditions.
// There is deliberately no OR group: a disjunction next to the tenant
// condition could widen the result set beyond one tenant.
type Expression struct {
	must []Condition
}

// NewExpression validates and creates a filter Expression.
func NewExpression(must ...Condition) (Expression, error) {
	if len(must) > MaxConditions {
		return Expression{}, fmt.Errorf("too many conditions (max %d)", MaxConditions)
	}
	return Expression{must: must}, nil
}

// ForTenant builds the mandatory tenant scope on the shared tenant field.
func ForTenant(tenantID string) (Expression, error) {
	cond, err := NewMatch(domain.TenantField, tenantID)
	if err != nil {
		return Expression{}, err
	}
	return Expression{must: []Condition{cond}}, nil
}

// And returns a new expression with cond appended. The receiver is not modified.
func (e Expression) And(cond Condition) (Expression, error) {
	must := make([]Condition, 0, len(e.must)+1)
	must = append(must, e.must...)
	must = append(must, cond)
	return NewExpression(must...)
}

// Must returns the conditions.
func (e Expression) Must() []Condition { return e.must }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool { return len(e.must) == 0 }

// Tenant returns the tenant id the expression is scoped to, if any.
func (e Expression) Tenant() (string, bool) {
	for _, c := range e.must {
		if c.key == domain.TenantField {
			return c.value, true
		}
	}
	return "", false
}

// Condition is a single exact-match clause.
type Condition struct {
	key   string
	value string
}

// NewMatch creates an exact match condition.
func NewMatch(key, value string) (Condition, error) {
	if key == "" {
		return Condition{}, fmt.Errorf("filter key is required")
	}
	if value == "" {
		return Condition{}, fmt.Errorf("match value is required for key %q", key)
	}
	return Condition{key: key, value: value}, nil
}

// Key returns the field name.
func (c Condition) Key() string { return c.key }

// Value returns the exact match value.
func (c Condition) Value() string { return c.value }
