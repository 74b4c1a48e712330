// Package contract generates typed, validated data contracts from entity
// descriptors: one concrete contract per (entity, operation) pair, with
// relation fields resolved through the lazy relation registry and constraint
// functions and overrides installed on a fresh copy of the shared base.
package contract

import (
	"encoding/base64"
	"fmt"

	"github.com/restforge/restforge/internal/engine/descriptor"
	"github.com/restforge/restforge/internal/engine/relation"
	"github.com/restforge/restforge/internal/engine/scopes"
	"github.com/restforge/restforge/internal/engine/validation"
	"github.com/restforge/restforge/internal/storage"
)

// RelationField carries the resolved relation metadata for a contract field
type RelationField struct {
	// Def is the storage-level relation definition
	Def storage.RelationDef

	// AsID emits the relation as a raw identifier instead of a nested object
	AsID bool

	// Resolved is the lazily-forced target contract reference
	Resolved *relation.Resolved
}

// Field is a single named, typed slot of a generated contract
type Field struct {
	Name     string
	Type     storage.FieldType
	Required bool
	Nullable bool

	// Custom marks synthetic fields not backed by a storage column
	Custom bool
	Spec   descriptor.CustomSpec

	// Relation is non-nil for relation-backed fields
	Relation *RelationField

	// Rules are the field-level constraint functions
	Rules []validation.FieldRule
}

// Contract is the generated, validated record shape for one entity operation.
// Contracts are content-deterministic: generating the same (descriptor,
// operation) twice yields identical field sets and behavior.
type Contract struct {
	Name      string
	Entity    string // qualified entity name
	Operation descriptor.Operation

	// PrimaryKey is the entity's primary key field name
	PrimaryKey string

	// Fields in sorted name order
	Fields []*Field

	fieldIndex  map[string]*Field
	recordRules []validation.RecordRule

	dumpOverride  descriptor.DumpOverride
	buildOverride descriptor.BuildOverride
}

// Field returns the contract field with the given name, or nil
func (c *Contract) Field(name string) *Field {
	return c.fieldIndex[name]
}

// FieldNames returns the contract's field names in order
func (c *Contract) FieldNames() []string {
	names := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		names = append(names, f.Name)
	}
	return names
}

// Relations returns the contract's relation field names split by
// multiplicity, for eager-load scope union
func (c *Contract) Relations() scopes.ContractRelations {
	var rels scopes.ContractRelations
	for _, f := range c.Fields {
		if f.Relation == nil {
			continue
		}
		if f.Relation.Def.Kind.Many() {
			rels.Many = append(rels.Many, f.Name)
		} else {
			rels.Single = append(rels.Single, f.Name)
		}
	}
	return rels
}

// Build validates raw input against the contract and returns the validated
// record, customs included. Validation failures are returned as
// *validation.ValidationErrors.
func (c *Contract) Build(raw map[string]interface{}) (storage.Record, error) {
	// The super continuation handed to the override is bound to this
	// contract, so overrides installed on a synthesized copy never fall
	// through to a different contract's implementation.
	base := func(raw map[string]interface{}) (storage.Record, error) {
		return c.buildBase(raw, false)
	}
	if c.buildOverride != nil {
		return c.buildOverride(base, raw)
	}
	return base(raw)
}

// BuildPartial validates only the supplied keys. Absent fields, required
// ones included, stay untouched rather than erroring or defaulting, which
// is what a partial update needs.
func (c *Contract) BuildPartial(raw map[string]interface{}) (storage.Record, error) {
	base := func(raw map[string]interface{}) (storage.Record, error) {
		return c.buildBase(raw, true)
	}
	if c.buildOverride != nil {
		return c.buildOverride(base, raw)
	}
	return base(raw)
}

func (c *Contract) buildBase(raw map[string]interface{}, partial bool) (storage.Record, error) {
	errs := validation.NewValidationErrors()
	record := make(storage.Record, len(c.Fields))

	for _, f := range c.Fields {
		value, supplied := raw[f.Name]

		if !supplied {
			if partial {
				continue
			}
			switch {
			case f.Required:
				errs.Add(f.Name, "this field is required")
			case f.Custom && !f.Spec.IsRequired():
				// Input custom defaults, callable ones included, are
				// evaluated immediately.
				record[f.Name] = f.Spec.EvaluateDefault(nil)
			}
			// Optional fields with no supplied value are dropped, not
			// written as null.
			continue
		}

		if value == nil {
			if !f.Nullable {
				errs.Add(f.Name, "may not be null")
				continue
			}
			record[f.Name] = nil
			continue
		}

		// Relation fields carry raw identifiers on input; the identifier is
		// checked against the target when input is normalized.
		if f.Relation == nil {
			if err := validation.CheckValue(f.Type, value); err != nil {
				errs.Add(f.Name, err.Error())
				continue
			}
		}

		failed := false
		for _, rule := range f.Rules {
			if err := rule(value); err != nil {
				errs.Add(f.Name, err.Error())
				failed = true
			}
		}
		if failed {
			continue
		}

		record[f.Name] = value
	}

	if !errs.HasErrors() {
		for _, rule := range c.recordRules {
			rule(record, errs)
		}
	}

	if errs.HasErrors() {
		return nil, errs
	}
	return record, nil
}

// Dump serializes an entity instance through the contract into a plain map
func (c *Contract) Dump(instance storage.Record) (map[string]interface{}, error) {
	if c.dumpOverride != nil {
		return c.dumpOverride(c.dumpBase, instance)
	}
	return c.dumpBase(instance)
}

func (c *Contract) dumpBase(instance storage.Record) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(c.Fields))

	for _, f := range c.Fields {
		switch {
		case f.Custom:
			value, ok := instance[f.Name]
			if !ok {
				if f.Spec.IsRequired() {
					errs := validation.NewValidationErrors()
					errs.Add(f.Name, "required custom field could not be resolved")
					return nil, errs
				}
				// Output custom defaults are evaluated lazily with the
				// entity instance.
				value = f.Spec.EvaluateDefault(instance)
			}
			out[f.Name] = value

		case f.Relation != nil:
			value, err := c.dumpRelation(f, instance)
			if err != nil {
				return nil, err
			}
			out[f.Name] = value

		default:
			out[f.Name] = encodeValue(f.Type, instance[f.Name])
		}
	}

	return out, nil
}

func (c *Contract) dumpRelation(f *Field, instance storage.Record) (interface{}, error) {
	value := instance[f.Name]

	if f.Relation.AsID {
		return c.relationAsID(f, value, instance)
	}

	switch v := value.(type) {
	case nil:
		if f.Relation.Def.Kind.Many() {
			return []interface{}{}, nil
		}
		return nil, nil

	case storage.Record:
		return c.dumpNested(f, v)

	case map[string]interface{}:
		return c.dumpNested(f, storage.Record(v))

	case []storage.Record:
		items := make([]interface{}, 0, len(v))
		for _, rec := range v {
			nested, err := c.dumpNested(f, rec)
			if err != nil {
				return nil, err
			}
			items = append(items, nested)
		}
		return items, nil

	default:
		// The relation was not eager-loaded into a nested record; pass the
		// raw identifier through.
		return v, nil
	}
}

// dumpNested serializes a related record through the resolved target
// contract. Union references are resolved structurally: each alternative is
// attempted in declaration order and the first that serializes wins.
func (c *Contract) dumpNested(f *Field, rec storage.Record) (interface{}, error) {
	resolved := f.Relation.Resolved
	if resolved == nil {
		return map[string]interface{}(rec), nil
	}

	if resolved.IsUnion() {
		var lastErr error
		for _, alt := range resolved.Alternatives {
			nested, err := forceContract(alt)
			if err != nil {
				return nil, err
			}
			out, err := nested.Dump(rec)
			if err == nil {
				return out, nil
			}
			lastErr = err
		}
		return nil, fmt.Errorf("no union alternative matched for relation %s: %w", f.Name, lastErr)
	}

	nested, err := forceContract(resolved)
	if err != nil {
		return nil, err
	}
	return nested.Dump(rec)
}

func forceContract(r *relation.Resolved) (*Contract, error) {
	v, err := r.Contract()
	if err != nil {
		return nil, err
	}
	contract, ok := v.(*Contract)
	if !ok {
		return nil, fmt.Errorf("resolved relation %s is not a contract (%T)", r.Qualified, v)
	}
	return contract, nil
}

// relationAsID emits a relation as a raw identifier (or list of identifiers),
// keyed by the target contract's primary key
func (c *Contract) relationAsID(f *Field, value interface{}, instance storage.Record) (interface{}, error) {
	pk := "id"
	if r := f.Relation.Resolved; r != nil && !r.IsUnion() {
		nested, err := forceContract(r)
		if err != nil {
			return nil, err
		}
		pk = nested.PrimaryKey
	}

	idOf := func(v interface{}) interface{} {
		if rec, ok := v.(storage.Record); ok {
			return rec[pk]
		}
		if rec, ok := v.(map[string]interface{}); ok {
			return rec[pk]
		}
		return v
	}

	switch v := value.(type) {
	case nil:
		if f.Relation.Def.Kind.Many() {
			return []interface{}{}, nil
		}
		// Fall back to the sibling foreign-key value when the relation was
		// never loaded.
		fkName := f.Relation.Def.ForeignKey
		if fkName == "" {
			fkName = f.Name + "_id"
		}
		if fk, ok := instance[fkName]; ok {
			return fk, nil
		}
		return nil, nil

	case []storage.Record:
		ids := make([]interface{}, 0, len(v))
		for _, rec := range v {
			ids = append(ids, idOf(rec))
		}
		return ids, nil

	case []interface{}:
		ids := make([]interface{}, 0, len(v))
		for _, item := range v {
			ids = append(ids, idOf(item))
		}
		return ids, nil

	default:
		return idOf(v), nil
	}
}

func encodeValue(ft storage.FieldType, value interface{}) interface{} {
	if ft == storage.TypeBinary {
		if b, ok := value.([]byte); ok {
			return base64.StdEncoding.EncodeToString(b)
		}
	}
	return value
}
