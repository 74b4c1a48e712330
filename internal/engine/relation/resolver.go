package relation

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnresolvable is returned when a reference names an entity no registered
// contract source can supply. It is a configuration error: raised the first
// time generation needs the reference, never silently ignored.
var ErrUnresolvable = errors.New("unresolvable relation reference")

// Source supplies contract thunks for qualified entity names. The thunk is
// only forced when the resolved contract's fields are actually read, which is
// what makes "registered but not yet generated" entries workable.
type Source interface {
	ContractThunk(qualified string) (func() (interface{}, error), bool)
}

// Resolved is a lazily-forced contract reference produced by the Resolver.
// For unions, Contract is nil and Alternatives holds one Resolved per
// polymorphic alternative.
type Resolved struct {
	Qualified    string
	Alternatives []*Resolved

	slot *slot
	// direct holds an already-built contract for Direct references
	direct interface{}
}

// IsUnion returns true if the reference resolves to an any-of union
func (r *Resolved) IsUnion() bool {
	return len(r.Alternatives) > 0
}

// Contract forces the underlying thunk and returns the concrete contract.
// Forcing is memoized; concurrent first forces converge to the same value.
func (r *Resolved) Contract() (interface{}, error) {
	if r.direct != nil {
		return r.direct, nil
	}
	if r.slot == nil {
		return nil, fmt.Errorf("%w: union reference has no single contract", ErrUnresolvable)
	}
	return r.slot.force()
}

// slot memoizes a single contract thunk. sync.Once serializes the first
// force per cache key, so impure thunks still resolve exactly once.
type slot struct {
	once  sync.Once
	thunk func() (interface{}, error)
	value interface{}
	err   error
}

func (s *slot) force() (interface{}, error) {
	s.once.Do(func() {
		s.value, s.err = s.thunk()
	})
	return s.value, s.err
}

// Resolver turns relation references into Resolved handles against a
// registry of contract sources. Resolution is idempotent and read-mostly:
// slots are created once per qualified name and shared.
type Resolver struct {
	source Source

	mu    sync.Mutex
	slots map[string]*slot
}

// NewResolver creates a resolver backed by the given contract source
func NewResolver(source Source) *Resolver {
	return &Resolver{
		source: source,
		slots:  make(map[string]*slot),
	}
}

// Resolve resolves a reference declared in the given namespace. Bare names
// look up against the declaring namespace; qualified paths resolve across
// namespaces; unions resolve every alternative independently. The returned
// handle defers contract generation until Contract is called.
func (r *Resolver) Resolve(ref Reference, namespace string) (*Resolved, error) {
	switch ref := ref.(type) {
	case Direct:
		if ref.Contract == nil {
			return nil, fmt.Errorf("%w: direct reference with nil contract", ErrUnresolvable)
		}
		return &Resolved{direct: ref.Contract}, nil

	case Lazy:
		return r.resolveQualified(Qualify(namespace, ref.Name))

	case Path:
		if !IsQualified(ref.Qualified) {
			// A path without a separator behaves like a lazy name in the
			// declaring namespace.
			return r.resolveQualified(Qualify(namespace, ref.Qualified))
		}
		return r.resolveQualified(ref.Qualified)

	case Union:
		if len(ref.Alternatives) == 0 {
			return nil, fmt.Errorf("%w: empty union", ErrUnresolvable)
		}
		resolved := &Resolved{Alternatives: make([]*Resolved, 0, len(ref.Alternatives))}
		for _, alt := range ref.Alternatives {
			if _, nested := alt.(Union); nested {
				return nil, fmt.Errorf("%w: nested unions are not supported", ErrUnresolvable)
			}
			sub, err := r.Resolve(alt, namespace)
			if err != nil {
				return nil, err
			}
			resolved.Alternatives = append(resolved.Alternatives, sub)
		}
		return resolved, nil

	default:
		return nil, fmt.Errorf("%w: unknown reference kind %T", ErrUnresolvable, ref)
	}
}

func (r *Resolver) resolveQualified(qualified string) (*Resolved, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.slots[qualified]; ok {
		return &Resolved{Qualified: qualified, slot: s}, nil
	}

	thunk, ok := r.source.ContractThunk(qualified)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvable, qualified)
	}

	s := &slot{thunk: thunk}
	r.slots[qualified] = s
	return &Resolved{Qualified: qualified, slot: s}, nil
}
