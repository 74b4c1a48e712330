package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/restforge/restforge/internal/storage"
)

// Constraint errors surfaced by Insert, Update, and Delete. Callers can
// classify them with errors.Is or the Is* helpers below.
var (
	// ErrUniqueViolation is returned when a unique constraint is violated
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrCheckViolation is returned when a check constraint is violated
	ErrCheckViolation = errors.New("check constraint violation")

	// ErrNotNullViolation is returned when a NOT NULL constraint is violated
	ErrNotNullViolation = errors.New("not null constraint violation")
)

// convertError converts driver-specific errors into the store's error
// taxonomy so callers never depend on the underlying database package.
func (s *Store) convertError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrUniqueViolation, pgErr.Detail)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", ErrForeignKeyViolation, pgErr.Detail)
		case "23514": // check_violation
			return fmt.Errorf("%w: %s", ErrCheckViolation, pgErr.Detail)
		case "23502": // not_null_violation
			return fmt.Errorf("%w: column %s", ErrNotNullViolation, pgErr.ColumnName)
		}
	}

	if s.dialect == DialectSQLite {
		if converted := convertSQLiteError(err); converted != nil {
			return converted
		}
	}

	return err
}

// convertSQLiteError classifies sqlite constraint failures by message. The
// sqlite3 driver exposes typed errors, but matching on the canonical message
// keeps the driver out of the production import graph.
func convertSQLiteError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %s", ErrUniqueViolation, msg)
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: %s", ErrForeignKeyViolation, msg)
	case strings.Contains(msg, "CHECK constraint failed"):
		return fmt.Errorf("%w: %s", ErrCheckViolation, msg)
	case strings.Contains(msg, "NOT NULL constraint failed"):
		return fmt.Errorf("%w: %s", ErrNotNullViolation, msg)
	}
	return nil
}

// IsUniqueViolation returns true if the error is ErrUniqueViolation
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}

// IsForeignKeyViolation returns true if the error is ErrForeignKeyViolation
func IsForeignKeyViolation(err error) bool {
	return errors.Is(err, ErrForeignKeyViolation)
}

// IsCheckViolation returns true if the error is ErrCheckViolation
func IsCheckViolation(err error) bool {
	return errors.Is(err, ErrCheckViolation)
}

// IsNotNullViolation returns true if the error is ErrNotNullViolation
func IsNotNullViolation(err error) bool {
	return errors.Is(err, ErrNotNullViolation)
}
