// Package validation provides the structural-validation layer contracts are
// built on: a field-path-to-messages error type and value checking against
// storage field types.
package validation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ValidationErrors contains validation errors for a record, keyed by field path
type ValidationErrors struct {
	Fields map[string][]string `json:"fields"`
}

// NewValidationErrors creates a new ValidationErrors instance
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Fields: make(map[string][]string),
	}
}

// Add adds a validation error for a specific field
func (ve *ValidationErrors) Add(field, message string) {
	if ve.Fields == nil {
		ve.Fields = make(map[string][]string)
	}
	ve.Fields[field] = append(ve.Fields[field], message)
}

// Addf adds a formatted validation error for a specific field
func (ve *ValidationErrors) Addf(field, format string, args ...interface{}) {
	ve.Add(field, fmt.Sprintf(format, args...))
}

// Merge copies all errors from other into the receiver
func (ve *ValidationErrors) Merge(other *ValidationErrors) {
	if other == nil {
		return
	}
	for field, messages := range other.Fields {
		for _, msg := range messages {
			ve.Add(field, msg)
		}
	}
}

// HasErrors returns true if there are any validation errors
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Fields) > 0
}

// Count returns the total number of validation errors across all fields
func (ve *ValidationErrors) Count() int {
	count := 0
	for _, messages := range ve.Fields {
		count += len(messages)
	}
	return count
}

// Error implements the error interface
func (ve *ValidationErrors) Error() string {
	if !ve.HasErrors() {
		return "validation failed"
	}

	fields := make([]string, 0, len(ve.Fields))
	for field := range ve.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var messages []string
	for _, field := range fields {
		for _, msg := range ve.Fields[field] {
			messages = append(messages, fmt.Sprintf("  - %s: %s", field, msg))
		}
	}

	if len(messages) == 1 {
		return fmt.Sprintf("validation failed: %s", strings.TrimPrefix(messages[0], "  - "))
	}

	return fmt.Sprintf("validation failed:\n%s", strings.Join(messages, "\n"))
}

// MarshalJSON implements json.Marshaler for custom JSON serialization
func (ve *ValidationErrors) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error  string              `json:"error"`
		Fields map[string][]string `json:"fields"`
	}{
		Error:  "validation_failed",
		Fields: ve.Fields,
	})
}

// FieldError represents a validation error on a specific field
type FieldError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (fe FieldError) Error() string {
	return fmt.Sprintf("%s: %s", fe.Field, fe.Message)
}

// NewFieldError creates a new FieldError
func NewFieldError(field, message string) FieldError {
	return FieldError{
		Field:   field,
		Message: message,
	}
}
