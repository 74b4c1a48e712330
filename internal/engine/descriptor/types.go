// Package descriptor defines entity descriptors: the declarative
// configuration that drives contract generation and CRUD orchestration for a
// persistent-entity type. Descriptors are built once at declaration time,
// validated eagerly, and immutable afterwards.
package descriptor

import (
	"github.com/restforge/restforge/internal/engine/validation"
	"github.com/restforge/restforge/internal/storage"
)

// Operation represents a contract-generating API operation
type Operation int

const (
	// OpCreate is the input contract for record creation
	OpCreate Operation = iota
	// OpRead is the output contract for list reads
	OpRead
	// OpDetail is the output contract for single-record reads
	OpDetail
	// OpUpdate is the input contract for record updates
	OpUpdate
)

// String returns the string representation of the operation
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpRead:
		return "read"
	case OpDetail:
		return "detail"
	case OpUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Optional is an optional contract field declared as a (name, type) pair
type Optional struct {
	Name string
	Type storage.FieldType
}

// DumpFunc produces the output mapping for an entity instance
type DumpFunc func(instance storage.Record) (map[string]interface{}, error)

// BuildFunc validates raw input into a record
type BuildFunc func(raw map[string]interface{}) (storage.Record, error)

// DumpOverride replaces a contract's dump behavior. The super argument is the
// generated implementation, bound to the synthesized contract the override is
// installed on; overrides call it explicitly where a parent implementation is
// wanted.
type DumpOverride func(super DumpFunc, instance storage.Record) (map[string]interface{}, error)

// BuildOverride replaces a contract's build behavior, with the generated
// implementation supplied as the super argument.
type BuildOverride func(super BuildFunc, raw map[string]interface{}) (storage.Record, error)

// Overrides holds the plain method overrides an operation config may declare
type Overrides struct {
	Dump  DumpOverride
	Build BuildOverride
}

// OperationConfig selects and shapes the fields of one operation's contract.
// Excludes always win: a name listed there is never emitted regardless of its
// presence in Fields, Optionals, or Customs.
type OperationConfig struct {
	// Fields are the required storage-backed field names
	Fields []string

	// Optionals are storage-backed or free-standing optional fields
	Optionals []Optional

	// Customs are synthetic fields not backed by storage columns
	Customs []CustomSpec

	// Excludes removes fields from the contract unconditionally
	Excludes []string

	// FieldRules are per-field constraint functions, keyed by field name
	FieldRules map[string][]validation.FieldRule

	// RecordRules are whole-record constraint functions
	RecordRules []validation.RecordRule

	// Overrides are plain method overrides installed on the contract
	Overrides Overrides
}

// Excluded returns true if the given field name is excluded
func (c *OperationConfig) Excluded(name string) bool {
	for _, e := range c.Excludes {
		if e == name {
			return true
		}
	}
	return false
}
