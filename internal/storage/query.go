package storage

// Operator represents a comparison operator in a query condition
type Operator int

const (
	// OpEqual matches values exactly
	OpEqual Operator = iota
	// OpNotEqual matches values that differ
	OpNotEqual
	// OpIn matches values contained in a list
	OpIn
	// OpIsNull matches NULL values
	OpIsNull
)

// Condition represents a single predicate in a query
type Condition struct {
	Field    string
	Operator Operator
	Value    interface{}
}

// Query is a lazy, immutable description of a record lookup. Builder methods
// return derived copies so a query can be scoped repeatedly without mutating
// the original; nothing executes until a Store consumes it.
type Query struct {
	entity        string
	conditions    []Condition
	orderBy       []string
	limit         *int
	offset        *int
	selectRelated []string
	prefetch      []string
}

// NewQuery creates a query over the given entity
func NewQuery(entity string) *Query {
	return &Query{entity: entity}
}

// Clone returns a deep copy of the query
func (q *Query) Clone() *Query {
	out := &Query{
		entity:        q.entity,
		conditions:    append([]Condition(nil), q.conditions...),
		orderBy:       append([]string(nil), q.orderBy...),
		selectRelated: append([]string(nil), q.selectRelated...),
		prefetch:      append([]string(nil), q.prefetch...),
	}
	if q.limit != nil {
		limit := *q.limit
		out.limit = &limit
	}
	if q.offset != nil {
		offset := *q.offset
		out.offset = &offset
	}
	return out
}

// Where adds an equality condition
func (q *Query) Where(field string, value interface{}) *Query {
	return q.WhereOp(field, OpEqual, value)
}

// WhereOp adds a condition with an explicit operator
func (q *Query) WhereOp(field string, op Operator, value interface{}) *Query {
	out := q.Clone()
	out.conditions = append(out.conditions, Condition{Field: field, Operator: op, Value: value})
	return out
}

// OrderBy adds ordering clauses
func (q *Query) OrderBy(clauses ...string) *Query {
	out := q.Clone()
	out.orderBy = append(out.orderBy, clauses...)
	return out
}

// Limit sets the maximum number of rows to return
func (q *Query) Limit(n int) *Query {
	out := q.Clone()
	out.limit = &n
	return out
}

// Offset sets the number of rows to skip
func (q *Query) Offset(n int) *Query {
	out := q.Clone()
	out.offset = &n
	return out
}

// SelectRelated attaches forward-join directives. Duplicate names are
// collapsed so scopes can be merged freely.
func (q *Query) SelectRelated(names ...string) *Query {
	out := q.Clone()
	out.selectRelated = appendUnique(out.selectRelated, names)
	return out
}

// Prefetch attaches collection-prefetch directives
func (q *Query) Prefetch(names ...string) *Query {
	out := q.Clone()
	out.prefetch = appendUnique(out.prefetch, names)
	return out
}

// Entity returns the entity name the query targets
func (q *Query) Entity() string { return q.entity }

// Conditions returns the query's predicates
func (q *Query) Conditions() []Condition { return q.conditions }

// Ordering returns the query's order-by clauses
func (q *Query) Ordering() []string { return q.orderBy }

// LimitValue returns the limit, or nil if unset
func (q *Query) LimitValue() *int { return q.limit }

// OffsetValue returns the offset, or nil if unset
func (q *Query) OffsetValue() *int { return q.offset }

// SelectRelatedNames returns the attached forward-join directives
func (q *Query) SelectRelatedNames() []string { return q.selectRelated }

// PrefetchNames returns the attached collection-prefetch directives
func (q *Query) PrefetchNames() []string { return q.prefetch }

func appendUnique(existing []string, names []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, n := range existing {
		seen[n] = true
	}
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			existing = append(existing, n)
		}
	}
	return existing
}
