package descriptor

import (
	"fmt"

	"github.com/restforge/restforge/internal/storage"
)

// requiredSentinel is the type of the Required marker
type requiredSentinel struct{}

func (requiredSentinel) String() string { return "<required>" }

// Required is the sentinel default for custom fields whose value must be
// supplied on input (or be resolvable on output). Missing values fail
// validation rather than being silently dropped.
var Required = requiredSentinel{}

// CustomSpec is a normalized synthetic-field declaration: a field carried by
// a contract but not backed directly by a storage column.
type CustomSpec struct {
	Name    string
	Type    storage.FieldType
	Default interface{} // literal, callable, or the Required sentinel

	// err records a malformed declaration so it can fail fast during
	// descriptor registration instead of per request
	err error
}

// IsRequired returns true if the custom field has no usable default
func (c CustomSpec) IsRequired() bool {
	_, ok := c.Default.(requiredSentinel)
	return ok
}

// CustomField declares a custom field. With no trailing argument the field is
// required; with exactly one it becomes the default, which may be a literal,
// a func() interface{}, or a func(storage.Record) interface{} evaluated with
// the entity instance when dumping output. Any other arity is a configuration
// error surfaced at descriptor-build time.
func CustomField(name string, fieldType storage.FieldType, defaultValue ...interface{}) CustomSpec {
	spec := CustomSpec{Name: name, Type: fieldType, Default: Required}

	switch len(defaultValue) {
	case 0:
	case 1:
		spec.Default = defaultValue[0]
	default:
		spec.err = fmt.Errorf("custom field %q declared with %d default values, want at most 1",
			name, len(defaultValue))
	}

	return spec
}

// EvaluateDefault resolves a custom field's default against an entity
// instance. Zero-argument callables are invoked, one-argument callables
// receive the instance; anything else is returned as a literal.
func (c CustomSpec) EvaluateDefault(instance storage.Record) interface{} {
	switch fn := c.Default.(type) {
	case func() interface{}:
		return fn()
	case func(storage.Record) interface{}:
		return fn(instance)
	default:
		return c.Default
	}
}

// normalizeCustoms checks a custom field list for malformed declarations and
// duplicate names. It is called once per operation config at registration.
func normalizeCustoms(entity string, customs []CustomSpec) error {
	seen := make(map[string]bool, len(customs))
	for _, c := range customs {
		if c.err != nil {
			return NewConfigError(entity, c.Name, "%v", c.err)
		}
		if c.Name == "" {
			return NewConfigError(entity, "", "custom field with empty name")
		}
		if seen[c.Name] {
			return NewConfigError(entity, c.Name, "duplicate custom field")
		}
		seen[c.Name] = true
	}
	return nil
}
