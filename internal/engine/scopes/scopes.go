// Package scopes is the query-plan engine: named eager-load scopes that
// attach forward-join and collection-prefetch directives to lazy queries, so
// relations referenced by a contract never degenerate into N+1 lookups.
package scopes

import (
	"github.com/restforge/restforge/internal/storage"
)

// Well-known scope names
const (
	ScopeRead            = "read"
	ScopeDetail          = "detail"
	ScopeQuerysetRequest = "queryset_request"
)

// Scope is a named set of eager-load directives: Select holds forward-join
// field paths, Prefetch holds collection-prefetch field paths.
type Scope struct {
	Select   []string
	Prefetch []string
}

// Clone returns a deep copy of the scope
func (s *Scope) Clone() *Scope {
	if s == nil {
		return &Scope{}
	}
	return &Scope{
		Select:   append([]string(nil), s.Select...),
		Prefetch: append([]string(nil), s.Prefetch...),
	}
}

// Plans holds an entity type's named eager-load scopes. Declared once per
// entity; applied repeatedly and non-mutating at request time.
type Plans struct {
	Read            *Scope
	Detail          *Scope
	QuerysetRequest *Scope
	Extra           map[string]*Scope
}

// Named returns the scope with the given name. The detail scope falls back
// to read when undeclared; unknown names return an empty scope.
func (p *Plans) Named(name string) *Scope {
	if p == nil {
		return &Scope{}
	}

	switch name {
	case ScopeRead:
		if p.Read != nil {
			return p.Read
		}
	case ScopeDetail:
		if p.Detail != nil {
			return p.Detail
		}
		if p.Read != nil {
			return p.Read
		}
	case ScopeQuerysetRequest:
		if p.QuerysetRequest != nil {
			return p.QuerysetRequest
		}
	default:
		if s, ok := p.Extra[name]; ok {
			return s
		}
	}

	return &Scope{}
}

// ApplyOptions controls how a scope is applied to a query
type ApplyOptions struct {
	// ForRead opts in to unioning the named scope with the relation names
	// auto-discovered from the operation's contract, so relations a contract
	// emits are always eager-loaded even when omitted from the scope.
	ForRead bool

	// ContractRelations are the relation field names discovered from the
	// contract; split by multiplicity so singular relations become joins and
	// collections become prefetches. Only consulted when ForRead is set.
	ContractRelations ContractRelations
}

// ContractRelations are relation names discovered from a generated contract
type ContractRelations struct {
	Single []string
	Many   []string
}

// Apply attaches the named scope's directives to the query and returns the
// derived query without materializing anything.
func (p *Plans) Apply(q *storage.Query, name string, opts ApplyOptions) *storage.Query {
	scope := p.Named(name)

	out := q
	if len(scope.Select) > 0 {
		out = out.SelectRelated(scope.Select...)
	}
	if len(scope.Prefetch) > 0 {
		out = out.Prefetch(scope.Prefetch...)
	}

	if opts.ForRead {
		if len(opts.ContractRelations.Single) > 0 {
			out = out.SelectRelated(opts.ContractRelations.Single...)
		}
		if len(opts.ContractRelations.Many) > 0 {
			out = out.Prefetch(opts.ContractRelations.Many...)
		}
	}

	return out
}
