package validation

import (
	"fmt"
	"regexp"
)

// FieldRule is a constraint function applied to a single field value.
// A returned error becomes a validation message on that field.
type FieldRule func(value interface{}) error

// RecordRule is a constraint function applied to a whole validated record.
// Implementations report failures through the supplied error collector so a
// single rule can flag multiple fields.
type RecordRule func(record map[string]interface{}, errs *ValidationErrors)

// MinLength returns a rule requiring a string of at least n characters
func MinLength(n int) FieldRule {
	return func(value interface{}) error {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		if len(s) < n {
			return fmt.Errorf("must be at least %d characters", n)
		}
		return nil
	}
}

// MaxLength returns a rule requiring a string of at most n characters
func MaxLength(n int) FieldRule {
	return func(value interface{}) error {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		if len(s) > n {
			return fmt.Errorf("must be at most %d characters", n)
		}
		return nil
	}
}

// Pattern returns a rule requiring a string to match the given regexp
func Pattern(expr string) FieldRule {
	re := regexp.MustCompile(expr)
	return func(value interface{}) error {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		if !re.MatchString(s) {
			return fmt.Errorf("must match pattern %s", expr)
		}
		return nil
	}
}

// OneOf returns a rule requiring the value to be one of the allowed values
func OneOf(allowed ...interface{}) FieldRule {
	return func(value interface{}) error {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return fmt.Errorf("must be one of %v", allowed)
	}
}
