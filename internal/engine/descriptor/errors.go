package descriptor

import (
	"errors"
	"fmt"
)

// ErrConfiguration is the sentinel all configuration errors wrap. It marks a
// programming error in an entity declaration: raised at descriptor-build or
// first contract generation, never at request time, and never caught by the
// orchestrator.
var ErrConfiguration = errors.New("configuration error")

// ConfigError describes a malformed entity declaration
type ConfigError struct {
	Entity  string
	Field   string
	Message string
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	switch {
	case e.Entity != "" && e.Field != "":
		return fmt.Sprintf("configuration error: %s.%s: %s", e.Entity, e.Field, e.Message)
	case e.Entity != "":
		return fmt.Sprintf("configuration error: %s: %s", e.Entity, e.Message)
	default:
		return fmt.Sprintf("configuration error: %s", e.Message)
	}
}

// Unwrap makes ConfigError match ErrConfiguration via errors.Is
func (e *ConfigError) Unwrap() error {
	return ErrConfiguration
}

// NewConfigError creates a new ConfigError
func NewConfigError(entity, field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{
		Entity:  entity,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsConfigError returns true if the error is a configuration error
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
