package contract

import (
	"fmt"
	"sort"
	"sync"

	"github.com/restforge/restforge/internal/engine/descriptor"
	"github.com/restforge/restforge/internal/engine/relation"
	"github.com/restforge/restforge/internal/storage"
)

// Generator turns entity descriptors into generated contracts. Generation
// runs a fixed pipeline per (descriptor, operation): build the base shape
// from storage metadata and the operation config, resolve relation fields
// through the lazy resolver, then inject constraint functions and overrides
// onto a fresh copy. Results are cached, but generation is idempotent and
// correct without the cache.
type Generator struct {
	registry *descriptor.Registry
	resolver *relation.Resolver

	mu    sync.RWMutex
	cache map[string]*Contract
}

// NewGenerator creates a generator over the given descriptor registry
func NewGenerator(registry *descriptor.Registry) *Generator {
	g := &Generator{
		registry: registry,
		cache:    make(map[string]*Contract),
	}
	g.resolver = relation.NewResolver(g)
	return g
}

// Resolver exposes the generator's relation resolver
func (g *Generator) Resolver() *relation.Resolver {
	return g.resolver
}

// ContractThunk implements relation.Source: relation references resolve to
// the target entity's read contract, generated only when the reference is
// actually forced. Registration alone is enough for a name to resolve, which
// is what allows circular entity graphs.
func (g *Generator) ContractThunk(qualified string) (func() (interface{}, error), bool) {
	if _, ok := g.registry.Get(qualified); !ok {
		return nil, false
	}
	return func() (interface{}, error) {
		d, ok := g.registry.Get(qualified)
		if !ok {
			return nil, fmt.Errorf("%w: %s", relation.ErrUnresolvable, qualified)
		}
		return g.Generate(d, descriptor.OpRead)
	}, true
}

// Generate produces the contract for one (descriptor, operation) pair
func (g *Generator) Generate(d *descriptor.EntityDescriptor, op descriptor.Operation) (*Contract, error) {
	key := d.Qualified() + "|" + op.String()

	g.mu.RLock()
	cached, ok := g.cache[key]
	g.mu.RUnlock()
	if ok {
		return cached, nil
	}

	cfg := d.ConfigFor(op)

	base, err := g.buildBase(d, op, cfg)
	if err != nil {
		return nil, err
	}

	if err := g.resolveRelations(d, base); err != nil {
		return nil, err
	}

	final, err := injectBehavior(base, d, cfg)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	if existing, ok := g.cache[key]; ok {
		// A concurrent first generation won the race; converge on it.
		final = existing
	} else {
		g.cache[key] = final
	}
	g.mu.Unlock()

	return final, nil
}

// buildBase constructs the base contract shape: the storage descriptor
// restricted to the operation's required/optional/custom fields minus
// excludes. With no explicit field list, every storage column is included
// and requiredness follows nullability.
func (g *Generator) buildBase(d *descriptor.EntityDescriptor, op descriptor.Operation, cfg *descriptor.OperationConfig) (*Contract, error) {
	pk, err := d.Storage.PrimaryKey()
	if err != nil {
		return nil, descriptor.NewConfigError(d.Name, "", "%v", err)
	}

	c := &Contract{
		Name:       d.Name + "." + op.String(),
		Entity:     d.Qualified(),
		Operation:  op,
		PrimaryKey: pk.Name,
		fieldIndex: make(map[string]*Field),
	}

	add := func(f *Field) {
		if cfg.Excluded(f.Name) {
			return
		}
		if _, exists := c.fieldIndex[f.Name]; exists {
			return
		}
		c.fieldIndex[f.Name] = f
		c.Fields = append(c.Fields, f)
	}

	if len(cfg.Fields) > 0 {
		for _, name := range cfg.Fields {
			f, err := g.storageField(d, name, true)
			if err != nil {
				return nil, err
			}
			add(f)
		}
	} else {
		for _, def := range d.Storage.Fields {
			add(&Field{
				Name:     def.Name,
				Type:     def.Type,
				Required: !def.Nullable && !def.Auto && isInput(op),
				Nullable: def.Nullable,
			})
		}
		for _, rel := range d.Storage.Relations {
			add(&Field{
				Name:     rel.Name,
				Type:     storage.TypeJSON,
				Relation: &RelationField{Def: rel},
			})
		}
	}

	for _, opt := range cfg.Optionals {
		f := &Field{Name: opt.Name, Type: opt.Type, Nullable: true}
		if def := d.Storage.Field(opt.Name); def != nil {
			f.Type = def.Type
			f.Nullable = def.Nullable
		}
		if rel := d.Storage.Relation(opt.Name); rel != nil {
			f.Relation = &RelationField{Def: *rel}
		}
		add(f)
	}

	for _, custom := range cfg.Customs {
		add(&Field{
			Name:     custom.Name,
			Type:     custom.Type,
			Required: custom.IsRequired() && isInput(op),
			Nullable: true,
			Custom:   true,
			Spec:     custom,
		})
	}

	// Sorted field order keeps generation deterministic.
	sort.Slice(c.Fields, func(i, j int) bool { return c.Fields[i].Name < c.Fields[j].Name })

	return c, nil
}

// storageField builds a contract field for an explicitly selected name
func (g *Generator) storageField(d *descriptor.EntityDescriptor, name string, required bool) (*Field, error) {
	if rel := d.Storage.Relation(name); rel != nil {
		return &Field{
			Name:     name,
			Type:     storage.TypeJSON,
			Required: required,
			Relation: &RelationField{Def: *rel},
		}, nil
	}

	def := d.Storage.Field(name)
	if def == nil {
		return nil, descriptor.NewConfigError(d.Name, name, "unknown storage field")
	}

	return &Field{
		Name:     name,
		Type:     def.Type,
		Required: required,
		Nullable: def.Nullable,
	}, nil
}

// resolveRelations replaces each relation field's declared reference with the
// resolver's output. Failures name the declaring entity and field: an
// unresolvable reference is a configuration error raised at first generation.
func (g *Generator) resolveRelations(d *descriptor.EntityDescriptor, c *Contract) error {
	for _, f := range c.Fields {
		if f.Relation == nil {
			continue
		}

		ref, ok := d.RelationReference(f.Name)
		if !ok {
			return descriptor.NewConfigError(d.Name, f.Name, "no relation reference")
		}

		resolved, err := g.resolver.Resolve(ref, d.Namespace)
		if err != nil {
			return descriptor.NewConfigError(d.Name, f.Name, "%v", err)
		}

		f.Relation.Resolved = resolved
		f.Relation.AsID = d.RelationAsID(f.Name)
	}
	return nil
}

func isInput(op descriptor.Operation) bool {
	return op == descriptor.OpCreate || op == descriptor.OpUpdate
}
