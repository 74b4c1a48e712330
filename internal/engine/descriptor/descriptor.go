package descriptor

import (
	"github.com/restforge/restforge/internal/engine/hooks"
	"github.com/restforge/restforge/internal/engine/relation"
	"github.com/restforge/restforge/internal/engine/scopes"
	"github.com/restforge/restforge/internal/storage"
)

// EntityDescriptor declares one persistent-entity type: its storage
// descriptor, per-operation contract configuration, relation overrides, and
// lifecycle behavior. Exactly one storage descriptor per entity.
type EntityDescriptor struct {
	// Name is the entity name; Namespace groups sibling entities for lazy
	// relation resolution ("" is the default namespace)
	Name      string
	Namespace string

	// Storage is the underlying storage descriptor
	Storage *storage.Descriptor

	// Per-operation contract configuration. Detail is special: when nil it
	// behaves identically to Read in all categories, but once declared (even
	// partially) it inherits nothing from Read.
	Create *OperationConfig
	Read   *OperationConfig
	Detail *OperationConfig
	Update *OperationConfig

	// RelationOverrides replaces the default lazy-name resolution for the
	// named relation fields
	RelationOverrides map[string]relation.Reference

	// RelationsAsID lists relation names emitted as raw identifiers instead
	// of nested contracts
	RelationsAsID []string

	// Scopes holds the entity's named eager-load scopes
	Scopes *scopes.Plans

	// Hooks is the config-style lifecycle hook set, receiving the instance
	// as an explicit argument
	Hooks hooks.Set

	// Behavior is the bound-style hook carrier: a value whose optional
	// interface implementations are discovered by the hook invoker
	Behavior interface{}
}

// Qualified returns the descriptor's registry key
func (d *EntityDescriptor) Qualified() string {
	return relation.Qualify(d.Namespace, d.Name)
}

// ConfigFor returns the operation config for the given operation. Detail
// falls back to Read only when left entirely undeclared.
func (d *EntityDescriptor) ConfigFor(op Operation) *OperationConfig {
	var cfg *OperationConfig
	switch op {
	case OpCreate:
		cfg = d.Create
	case OpRead:
		cfg = d.Read
	case OpDetail:
		cfg = d.Detail
		if cfg == nil {
			cfg = d.Read
		}
	case OpUpdate:
		cfg = d.Update
	}
	if cfg == nil {
		cfg = &OperationConfig{}
	}
	return cfg
}

// RelationAsID returns true if the named relation is emitted as a raw id
func (d *EntityDescriptor) RelationAsID(name string) bool {
	for _, n := range d.RelationsAsID {
		if n == name {
			return true
		}
	}
	return false
}

// RelationReference returns the reference to resolve for the named relation:
// the declared override if present, otherwise a lazy name pointing at the
// storage relation's target in the declaring namespace.
func (d *EntityDescriptor) RelationReference(name string) (relation.Reference, bool) {
	if ref, ok := d.RelationOverrides[name]; ok {
		return ref, true
	}
	rel := d.Storage.Relation(name)
	if rel == nil {
		return nil, false
	}
	return relation.Lazy{Name: rel.Target}, true
}

// validate checks the descriptor for declaration errors. Called once at
// registration; failures are fatal to the declaring entity type.
func (d *EntityDescriptor) validate() error {
	if d.Name == "" {
		return NewConfigError("", "", "entity with empty name")
	}
	if d.Storage == nil {
		return NewConfigError(d.Name, "", "entity has no storage descriptor")
	}

	for op, cfg := range map[Operation]*OperationConfig{
		OpCreate: d.Create,
		OpRead:   d.Read,
		OpDetail: d.Detail,
		OpUpdate: d.Update,
	} {
		if cfg == nil {
			continue
		}
		if err := d.validateConfig(op, cfg); err != nil {
			return err
		}
	}

	for name := range d.RelationOverrides {
		if d.Storage.Relation(name) == nil {
			return NewConfigError(d.Name, name, "relation override for unknown relation")
		}
	}
	for _, name := range d.RelationsAsID {
		if d.Storage.Relation(name) == nil {
			return NewConfigError(d.Name, name, "relations-as-id entry for unknown relation")
		}
	}

	return nil
}

func (d *EntityDescriptor) validateConfig(op Operation, cfg *OperationConfig) error {
	if err := normalizeCustoms(d.Name, cfg.Customs); err != nil {
		return err
	}

	for _, name := range cfg.Fields {
		if d.Storage.Field(name) == nil && d.Storage.Relation(name) == nil {
			return NewConfigError(d.Name, name, "%s config selects unknown storage field", op)
		}
		if cfg.Excluded(name) {
			return NewConfigError(d.Name, name, "%s config declares field both required and excluded", op)
		}
	}

	return nil
}
