package storage

import (
	"context"
	"errors"
)

// Common storage error types
var (
	// ErrNotFound is returned when a lookup matches zero records
	ErrNotFound = errors.New("record not found")

	// ErrUnknownEntity is returned when an entity has no registered descriptor
	ErrUnknownEntity = errors.New("unknown entity")
)

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Store is the persistence primitive set the engine orchestrates against.
// Implementations honor the query's eager-load directives when materializing
// rows and propagate context cancellation from every call.
type Store interface {
	// Descriptor returns the storage descriptor for an entity
	Descriptor(entity string) (*Descriptor, bool)

	// Get executes the query and returns exactly one record.
	// Returns ErrNotFound when zero rows match.
	Get(ctx context.Context, q *Query) (Record, error)

	// Select executes the query and returns all matching records
	Select(ctx context.Context, q *Query) ([]Record, error)

	// Insert persists a new record and returns it with auto fields populated
	Insert(ctx context.Context, entity string, values Record) (Record, error)

	// Update persists changed values for the record with the given primary key
	Update(ctx context.Context, entity string, pk interface{}, values Record) (Record, error)

	// Delete removes the record with the given primary key.
	// Returns ErrNotFound when no row matches.
	Delete(ctx context.Context, entity string, pk interface{}) error
}
