// Package sqlstore implements the abstract persistence layer over
// database/sql. It maps entity descriptors to tables, auto-populates
// generated primary keys and timestamps, honors a query's eager-load
// directives with batched relation queries, and converts driver errors into
// the storage error taxonomy.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/restforge/restforge/internal/storage"
)

// Dialect selects placeholder style and driver error conversion
type Dialect int

const (
	// DialectPostgres uses $n placeholders and pgconn error codes
	DialectPostgres Dialect = iota
	// DialectSQLite uses ? placeholders; used mainly for tests
	DialectSQLite
)

// Store is a database/sql-backed implementation of storage.Store
type Store struct {
	db          *sql.DB
	dialect     Dialect
	descriptors map[string]*storage.Descriptor
}

// New creates a store over the given connection and entity descriptors
func New(db *sql.DB, dialect Dialect, descriptors ...*storage.Descriptor) *Store {
	m := make(map[string]*storage.Descriptor, len(descriptors))
	for _, d := range descriptors {
		m[d.Name] = d
	}
	return &Store{db: db, dialect: dialect, descriptors: m}
}

// DB returns the underlying connection
func (s *Store) DB() *sql.DB { return s.db }

// Descriptor implements storage.Store
func (s *Store) Descriptor(entity string) (*storage.Descriptor, bool) {
	d, ok := s.descriptors[entity]
	return d, ok
}

func (s *Store) descriptor(entity string) (*storage.Descriptor, error) {
	d, ok := s.descriptors[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownEntity, entity)
	}
	return d, nil
}

// placeholder returns the dialect's placeholder for the nth argument (1-based)
func (s *Store) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// columns returns the descriptor's column names in sorted order for
// deterministic statements. Belongs-to foreign keys are columns even when
// the descriptor only declares them through the relation.
func columns(d *storage.Descriptor) []string {
	seen := make(map[string]bool, len(d.Fields))
	cols := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		seen[f.Name] = true
		cols = append(cols, f.Name)
	}
	for _, rel := range d.Relations {
		if rel.Kind != storage.BelongsTo {
			continue
		}
		fk := rel.ForeignKey
		if fk == "" {
			fk = rel.Name + "_id"
		}
		if !seen[fk] {
			seen[fk] = true
			cols = append(cols, fk)
		}
	}
	sort.Strings(cols)
	return cols
}

// Get implements storage.Store
func (s *Store) Get(ctx context.Context, q *storage.Query) (storage.Record, error) {
	records, err := s.Select(ctx, q.Limit(1))
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, storage.ErrNotFound
	}
	return records[0], nil
}

// Select implements storage.Store
func (s *Store) Select(ctx context.Context, q *storage.Query) ([]storage.Record, error) {
	d, err := s.descriptor(q.Entity())
	if err != nil {
		return nil, err
	}

	cols := columns(d)
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(cols, ", "), d.Table)

	where, args := s.buildWhere(q.Conditions(), 1)
	sb.WriteString(where)

	if ordering := q.Ordering(); len(ordering) > 0 {
		fmt.Fprintf(&sb, " ORDER BY %s", strings.Join(ordering, ", "))
	}
	if limit := q.LimitValue(); limit != nil {
		fmt.Fprintf(&sb, " LIMIT %d", *limit)
	}
	if offset := q.OffsetValue(); offset != nil {
		fmt.Fprintf(&sb, " OFFSET %d", *offset)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, s.convertError(err)
	}
	defer rows.Close()

	records, err := scanRows(rows)
	if err != nil {
		return nil, s.convertError(err)
	}

	if err := s.loadRelated(ctx, d, records, q.SelectRelatedNames(), q.PrefetchNames()); err != nil {
		return nil, err
	}

	return records, nil
}

// buildWhere renders conditions into a WHERE clause and argument list
func (s *Store) buildWhere(conditions []storage.Condition, start int) (string, []interface{}) {
	if len(conditions) == 0 {
		return "", nil
	}

	var clauses []string
	var args []interface{}
	n := start

	for _, cond := range conditions {
		switch cond.Operator {
		case storage.OpEqual:
			clauses = append(clauses, fmt.Sprintf("%s = %s", cond.Field, s.placeholder(n)))
			args = append(args, cond.Value)
			n++
		case storage.OpNotEqual:
			clauses = append(clauses, fmt.Sprintf("%s != %s", cond.Field, s.placeholder(n)))
			args = append(args, cond.Value)
			n++
		case storage.OpIn:
			values, _ := cond.Value.([]interface{})
			if len(values) == 0 {
				clauses = append(clauses, "1 = 0")
				continue
			}
			holders := make([]string, 0, len(values))
			for _, v := range values {
				holders = append(holders, s.placeholder(n))
				args = append(args, v)
				n++
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", cond.Field, strings.Join(holders, ", ")))
		case storage.OpIsNull:
			clauses = append(clauses, fmt.Sprintf("%s IS NULL", cond.Field))
		}
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Insert implements storage.Store
func (s *Store) Insert(ctx context.Context, entity string, values storage.Record) (storage.Record, error) {
	d, err := s.descriptor(entity)
	if err != nil {
		return nil, err
	}

	record := values.Clone()
	populateAutoFields(d, record, true)

	var fields []string
	var args []interface{}
	for _, col := range columns(d) {
		if v, ok := record[col]; ok {
			fields = append(fields, col)
			args = append(args, v)
		}
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("no fields to insert for %s", entity)
	}

	holders := make([]string, len(fields))
	for i := range fields {
		holders[i] = s.placeholder(i + 1)
	}

	returning := columns(d)
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		d.Table,
		strings.Join(fields, ", "),
		strings.Join(holders, ", "),
		strings.Join(returning, ", "),
	)

	row := s.db.QueryRowContext(ctx, query, args...)
	inserted, err := scanRowWithColumns(row, returning)
	if err != nil {
		return nil, s.convertError(err)
	}
	return inserted, nil
}

// Update implements storage.Store
func (s *Store) Update(ctx context.Context, entity string, pk interface{}, values storage.Record) (storage.Record, error) {
	d, err := s.descriptor(entity)
	if err != nil {
		return nil, err
	}
	pkField, err := d.PrimaryKey()
	if err != nil {
		return nil, err
	}

	record := values.Clone()
	populateAutoFields(d, record, false)

	var assignments []string
	var args []interface{}
	n := 1
	for _, col := range columns(d) {
		if col == pkField.Name {
			continue
		}
		if v, ok := record[col]; ok {
			assignments = append(assignments, fmt.Sprintf("%s = %s", col, s.placeholder(n)))
			args = append(args, v)
			n++
		}
	}
	if len(assignments) == 0 {
		return s.Get(ctx, storage.NewQuery(entity).Where(pkField.Name, pk))
	}

	returning := columns(d)
	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s = %s RETURNING %s",
		d.Table,
		strings.Join(assignments, ", "),
		pkField.Name,
		s.placeholder(n),
		strings.Join(returning, ", "),
	)
	args = append(args, pk)

	row := s.db.QueryRowContext(ctx, query, args...)
	updated, err := scanRowWithColumns(row, returning)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, s.convertError(err)
	}
	return updated, nil
}

// Delete implements storage.Store
func (s *Store) Delete(ctx context.Context, entity string, pk interface{}) error {
	d, err := s.descriptor(entity)
	if err != nil {
		return err
	}
	pkField, err := d.PrimaryKey()
	if err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", d.Table, pkField.Name, s.placeholder(1))
	result, err := s.db.ExecContext(ctx, query, pk)
	if err != nil {
		return s.convertError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// populateAutoFields fills generated primary keys and timestamp columns
func populateAutoFields(d *storage.Descriptor, record storage.Record, creating bool) {
	now := time.Now().UTC()

	for _, f := range d.Fields {
		if creating && f.Auto && f.Primary && !record.Has(f.Name) && f.Type == storage.TypeUUID {
			record[f.Name] = uuid.New().String()
		}
		if creating && f.Auto && f.Type == storage.TypeTimestamp && !record.Has(f.Name) {
			record[f.Name] = now
		}
		if !creating && f.AutoUpdate && f.Type == storage.TypeTimestamp {
			record[f.Name] = now
		}
	}
}
