package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/restforge/restforge/internal/storage"
)

// loadRelated attaches eager-loaded relations to a batch of records: one
// batched query per directive instead of one query per record.
func (s *Store) loadRelated(ctx context.Context, d *storage.Descriptor, records []storage.Record, selectRelated, prefetch []string) error {
	if len(records) == 0 {
		return nil
	}

	for _, name := range selectRelated {
		if err := s.loadOne(ctx, d, records, name); err != nil {
			return fmt.Errorf("failed to load relation %s: %w", name, err)
		}
	}
	for _, name := range prefetch {
		if err := s.loadOne(ctx, d, records, name); err != nil {
			return fmt.Errorf("failed to prefetch relation %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) loadOne(ctx context.Context, d *storage.Descriptor, records []storage.Record, name string) error {
	rel := d.Relation(name)
	if rel == nil {
		return fmt.Errorf("%w: unknown relation %s on %s", storage.ErrUnknownEntity, name, d.Name)
	}

	target, err := s.descriptor(rel.Target)
	if err != nil {
		return err
	}

	switch rel.Kind {
	case storage.BelongsTo:
		return s.loadBelongsTo(ctx, rel, target, records)
	case storage.HasOne, storage.HasMany:
		return s.loadReverse(ctx, d, rel, target, records)
	case storage.ManyToMany:
		return s.loadManyToMany(ctx, d, rel, target, records)
	default:
		return fmt.Errorf("unsupported relation kind %s", rel.Kind)
	}
}

// loadBelongsTo batches forward relations: collect foreign keys, fetch the
// targets in one IN query, attach by key.
func (s *Store) loadBelongsTo(ctx context.Context, rel *storage.RelationDef, target *storage.Descriptor, records []storage.Record) error {
	fk := rel.ForeignKey
	if fk == "" {
		fk = rel.Name + "_id"
	}

	ids := collectValues(records, fk)
	if len(ids) == 0 {
		return nil
	}

	pk, err := target.PrimaryKey()
	if err != nil {
		return err
	}

	related, err := s.Select(ctx, storage.NewQuery(target.Name).WhereOp(pk.Name, storage.OpIn, ids))
	if err != nil {
		return err
	}

	byID := make(map[interface{}]storage.Record, len(related))
	for _, rec := range related {
		byID[rec[pk.Name]] = rec
	}

	for _, rec := range records {
		if id := rec[fk]; id != nil {
			if nested, ok := byID[id]; ok {
				rec[rel.Name] = nested
			}
		}
	}
	return nil
}

// loadReverse batches has_one/has_many relations keyed by the foreign key on
// the target table
func (s *Store) loadReverse(ctx context.Context, d *storage.Descriptor, rel *storage.RelationDef, target *storage.Descriptor, records []storage.Record) error {
	if rel.ForeignKey == "" {
		return fmt.Errorf("relation %s has no foreign key", rel.Name)
	}

	sourcePK, err := d.PrimaryKey()
	if err != nil {
		return err
	}

	pks := collectValues(records, sourcePK.Name)
	if len(pks) == 0 {
		return nil
	}

	related, err := s.Select(ctx, storage.NewQuery(target.Name).WhereOp(rel.ForeignKey, storage.OpIn, pks))
	if err != nil {
		return err
	}

	grouped := make(map[interface{}][]storage.Record)
	for _, rec := range related {
		key := rec[rel.ForeignKey]
		grouped[key] = append(grouped[key], rec)
	}

	for _, rec := range records {
		group := grouped[rec[sourcePK.Name]]
		if rel.Kind == storage.HasOne {
			if len(group) > 0 {
				rec[rel.Name] = group[0]
			} else {
				rec[rel.Name] = nil
			}
			continue
		}
		if group == nil {
			group = []storage.Record{}
		}
		rec[rel.Name] = group
	}
	return nil
}

// loadManyToMany resolves the join table in one query, then the targets in a
// second, and attaches grouped collections
func (s *Store) loadManyToMany(ctx context.Context, d *storage.Descriptor, rel *storage.RelationDef, target *storage.Descriptor, records []storage.Record) error {
	if rel.JoinTable == "" || rel.SourceJoinKey == "" || rel.TargetJoinKey == "" {
		return fmt.Errorf("relation %s has incomplete join table configuration", rel.Name)
	}

	sourcePK, err := d.PrimaryKey()
	if err != nil {
		return err
	}

	pks := collectValues(records, sourcePK.Name)
	if len(pks) == 0 {
		return nil
	}

	holders, args := s.inClause(pks, 1)
	query := fmt.Sprintf(
		"SELECT %s, %s FROM %s WHERE %s IN (%s)",
		rel.SourceJoinKey, rel.TargetJoinKey, rel.JoinTable, rel.SourceJoinKey, holders,
	)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return s.convertError(err)
	}
	defer rows.Close()

	// source pk -> target pks, preserving join row order
	links := make(map[interface{}][]interface{})
	var targetIDs []interface{}
	seen := make(map[interface{}]bool)
	for rows.Next() {
		var source, targetID interface{}
		if err := rows.Scan(&source, &targetID); err != nil {
			return err
		}
		source = normalizeScanned(source)
		targetID = normalizeScanned(targetID)
		links[source] = append(links[source], targetID)
		if !seen[targetID] {
			seen[targetID] = true
			targetIDs = append(targetIDs, targetID)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(targetIDs) == 0 {
		for _, rec := range records {
			rec[rel.Name] = []storage.Record{}
		}
		return nil
	}

	pk, err := target.PrimaryKey()
	if err != nil {
		return err
	}

	related, err := s.Select(ctx, storage.NewQuery(target.Name).WhereOp(pk.Name, storage.OpIn, targetIDs))
	if err != nil {
		return err
	}

	byID := make(map[interface{}]storage.Record, len(related))
	for _, rec := range related {
		byID[rec[pk.Name]] = rec
	}

	for _, rec := range records {
		group := []storage.Record{}
		for _, targetID := range links[rec[sourcePK.Name]] {
			if nested, ok := byID[targetID]; ok {
				group = append(group, nested)
			}
		}
		rec[rel.Name] = group
	}
	return nil
}

// inClause renders placeholders and arguments for an IN list
func (s *Store) inClause(values []interface{}, start int) (string, []interface{}) {
	holders := make([]string, len(values))
	args := make([]interface{}, len(values))
	for i, v := range values {
		holders[i] = s.placeholder(start + i)
		args[i] = v
	}
	return strings.Join(holders, ", "), args
}

// collectValues gathers distinct non-nil values of a field across records
func collectValues(records []storage.Record, field string) []interface{} {
	seen := make(map[interface{}]bool)
	var values []interface{}
	for _, rec := range records {
		v := rec[field]
		if v == nil || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	return values
}
