// Package storage defines the abstract persistence layer the engine is built
// against: entity storage descriptors (fields, relations, multiplicity), plain
// map-backed records, and a lazy query value that carries predicates and
// eager-load directives without touching a database.
package storage

import "fmt"

// FieldType represents the storage-level type of a field
type FieldType int

const (
	// Text types
	TypeString FieldType = iota
	TypeText

	// Numeric types
	TypeInt
	TypeBigInt
	TypeFloat
	TypeDecimal

	// Boolean
	TypeBool

	// Time types
	TypeTimestamp
	TypeDate

	// Unique identifiers
	TypeUUID

	// Structured types
	TypeJSON

	// Raw bytes, transported base64-encoded
	TypeBinary
)

// String returns the string representation of the field type
func (f FieldType) String() string {
	switch f {
	case TypeString:
		return "string"
	case TypeText:
		return "text"
	case TypeInt:
		return "int"
	case TypeBigInt:
		return "bigint"
	case TypeFloat:
		return "float"
	case TypeDecimal:
		return "decimal"
	case TypeBool:
		return "bool"
	case TypeTimestamp:
		return "timestamp"
	case TypeDate:
		return "date"
	case TypeUUID:
		return "uuid"
	case TypeJSON:
		return "json"
	case TypeBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// ParseFieldType converts a string to a FieldType
func ParseFieldType(s string) (FieldType, error) {
	switch s {
	case "string":
		return TypeString, nil
	case "text":
		return TypeText, nil
	case "int":
		return TypeInt, nil
	case "bigint":
		return TypeBigInt, nil
	case "float":
		return TypeFloat, nil
	case "decimal":
		return TypeDecimal, nil
	case "bool":
		return TypeBool, nil
	case "timestamp":
		return TypeTimestamp, nil
	case "date":
		return TypeDate, nil
	case "uuid":
		return TypeUUID, nil
	case "json":
		return TypeJSON, nil
	case "binary":
		return TypeBinary, nil
	default:
		return 0, fmt.Errorf("unknown field type: %s", s)
	}
}

// FieldDef describes a single storage column
type FieldDef struct {
	Name     string
	Type     FieldType
	Nullable bool

	// Auto-populated on write (generated primary keys, timestamps)
	Auto       bool
	AutoUpdate bool

	// Primary marks the primary key column
	Primary bool
}

// RelationKind represents the multiplicity and direction of a relation
type RelationKind int

const (
	// BelongsTo is a forward relation backed by a foreign key column
	BelongsTo RelationKind = iota
	// HasOne is a reverse singular relation
	HasOne
	// HasMany is a reverse collection relation
	HasMany
	// ManyToMany is a collection relation through a join table
	ManyToMany
)

// String returns the string representation of the relation kind
func (r RelationKind) String() string {
	switch r {
	case BelongsTo:
		return "belongs_to"
	case HasOne:
		return "has_one"
	case HasMany:
		return "has_many"
	case ManyToMany:
		return "many_to_many"
	default:
		return "unknown"
	}
}

// Many returns true if the relation yields a collection
func (r RelationKind) Many() bool {
	return r == HasMany || r == ManyToMany
}

// RelationDef describes a relation between two storage descriptors
type RelationDef struct {
	Name   string
	Kind   RelationKind
	Target string // target entity name

	// ForeignKey is the column holding the reference. For BelongsTo it lives
	// on the declaring table, for HasOne/HasMany on the target table.
	ForeignKey string

	// ReverseAccessor is the name under which the target exposes the inverse
	ReverseAccessor string

	// Join table configuration for ManyToMany
	JoinTable     string
	SourceJoinKey string
	TargetJoinKey string

	// Polymorphic relations carry a discriminator column tracked by the
	// storage layer next to the foreign key.
	Discriminator string
}

// Descriptor describes one persistent-entity type at the storage level
type Descriptor struct {
	Name      string
	Table     string
	Fields    []FieldDef
	Relations []RelationDef
}

// Field returns the field definition with the given name, or nil
func (d *Descriptor) Field(name string) *FieldDef {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i]
		}
	}
	return nil
}

// Relation returns the relation definition with the given name, or nil
func (d *Descriptor) Relation(name string) *RelationDef {
	for i := range d.Relations {
		if d.Relations[i].Name == name {
			return &d.Relations[i]
		}
	}
	return nil
}

// PrimaryKey returns the primary key field definition
func (d *Descriptor) PrimaryKey() (*FieldDef, error) {
	for i := range d.Fields {
		if d.Fields[i].Primary {
			return &d.Fields[i], nil
		}
	}
	return nil, fmt.Errorf("entity %s has no primary key", d.Name)
}

// FieldNames returns all field names
func (d *Descriptor) FieldNames() []string {
	names := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		names = append(names, f.Name)
	}
	return names
}
