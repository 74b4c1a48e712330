package orchestrator

import (
	"encoding/base64"
	"reflect"

	"github.com/restforge/restforge/internal/engine/descriptor"
	"github.com/restforge/restforge/internal/engine/hooks"
	"github.com/restforge/restforge/internal/engine/validation"
	"github.com/restforge/restforge/internal/storage"
)

// NormalizeInput splits a validated payload into values destined for storage
// fields and custom values removed from the field set. Relation identifiers
// are resolved to the related entities (a per-field validation error when no
// such entity exists), binary fields are decoded from base64, and optional
// fields with no supplied value stay absent.
func (o *Orchestrator) NormalizeInput(rctx *hooks.Context, d *descriptor.EntityDescriptor, op descriptor.Operation, validated storage.Record) (storage.Record, map[string]interface{}, error) {
	c, err := o.generator.Generate(d, op)
	if err != nil {
		return nil, nil, err
	}

	fields := make(storage.Record, len(validated))
	customs := make(map[string]interface{})
	errs := validation.NewValidationErrors()

	for name, value := range validated {
		f := c.Field(name)
		if f == nil {
			continue
		}

		switch {
		case f.Custom:
			customs[name] = value

		case f.Relation != nil:
			resolved, err := o.resolveRelationInput(rctx, d, f.Relation.Def, value, errs, name)
			if err != nil {
				return nil, nil, err
			}
			if resolved != nil {
				fields[name] = resolved
			} else if value == nil {
				fields[name] = nil
			}

		case f.Type == storage.TypeBinary:
			decoded, ok := decodeBinary(value)
			if !ok {
				errs.Add(name, "malformed base64 value")
				continue
			}
			fields[name] = decoded

		default:
			fields[name] = value
		}
	}

	if errs.HasErrors() {
		return nil, nil, errs
	}
	return fields, customs, nil
}

// resolveRelationInput resolves a relation identifier to the related entity
func (o *Orchestrator) resolveRelationInput(rctx *hooks.Context, d *descriptor.EntityDescriptor, rel storage.RelationDef, value interface{}, errs *validation.ValidationErrors, name string) (interface{}, error) {
	if value == nil {
		return nil, nil
	}

	if rel.Kind.Many() {
		errs.Add(name, "collection relations cannot be written through this contract")
		return nil, nil
	}

	target, ok := o.store.Descriptor(rel.Target)
	if !ok {
		return nil, descriptor.NewConfigError(d.Name, name, "relation target %s has no storage descriptor", rel.Target)
	}
	pk, err := target.PrimaryKey()
	if err != nil {
		return nil, descriptor.NewConfigError(d.Name, name, "%v", err)
	}

	related, err := o.store.Get(rctx, storage.NewQuery(target.Name).Where(pk.Name, value))
	if err != nil {
		if storage.IsNotFound(err) {
			errs.Addf(name, "%s with id %v does not exist", rel.Target, value)
			return nil, nil
		}
		return nil, err
	}

	return related, nil
}

// NormalizeOutput injects sibling <field>_id keys next to nested relation
// representations so callers can reach identifiers without digging into the
// nested object. No storage round-trip happens here.
func (o *Orchestrator) NormalizeOutput(rctx *hooks.Context, d *descriptor.EntityDescriptor, dumped map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(dumped))
	for k, v := range dumped {
		out[k] = v
	}

	for _, rel := range d.Storage.Relations {
		value, ok := out[rel.Name]
		if !ok {
			continue
		}
		pk := o.relatedPK(rel)

		switch v := value.(type) {
		case map[string]interface{}:
			if id, ok := v[pk]; ok {
				out[rel.Name+"_id"] = id
			}
		case storage.Record:
			if id, ok := v[pk]; ok {
				out[rel.Name+"_id"] = id
			}
		case []interface{}:
			ids := make([]interface{}, 0, len(v))
			for _, item := range v {
				if rec, ok := item.(map[string]interface{}); ok {
					if id, ok := rec[pk]; ok {
						ids = append(ids, id)
					}
				}
			}
			if len(ids) == len(v) {
				out[rel.Name+"_ids"] = ids
			}
		}
	}

	return out
}

// extractRelated pulls the related-entity values out of a normalized field
// set so they can be reattached to the persisted record for output
func extractRelated(d *descriptor.EntityDescriptor, fields storage.Record) map[string]interface{} {
	related := make(map[string]interface{})
	for _, rel := range d.Storage.Relations {
		if v, ok := fields[rel.Name]; ok && v != nil {
			related[rel.Name] = v
		}
	}
	return related
}

// flattenRelations converts related-entity values into their foreign-key
// columns for persistence
func (o *Orchestrator) flattenRelations(d *descriptor.EntityDescriptor, fields storage.Record) storage.Record {
	flat := fields.Clone()
	for _, rel := range d.Storage.Relations {
		value, ok := flat[rel.Name]
		if !ok {
			continue
		}
		delete(flat, rel.Name)

		if rel.Kind != storage.BelongsTo {
			continue
		}

		fk := rel.ForeignKey
		if fk == "" {
			fk = rel.Name + "_id"
		}
		pk := o.relatedPK(rel)

		switch v := value.(type) {
		case nil:
			flat[fk] = nil
		case storage.Record:
			flat[fk] = v[pk]
		case map[string]interface{}:
			flat[fk] = v[pk]
		default:
			flat[fk] = v
		}
	}
	return flat
}

// relatedPK returns the primary key field name of a relation's target,
// falling back to id when the target has no registered descriptor.
func (o *Orchestrator) relatedPK(rel storage.RelationDef) string {
	if target, ok := o.store.Descriptor(rel.Target); ok {
		if pk, err := target.PrimaryKey(); err == nil {
			return pk.Name
		}
	}
	return "id"
}

// changedValues returns the subset of after whose values differ from the
// fetched row, so an update persists hook mutations alongside the assigned
// fields without rewriting untouched columns.
func changedValues(before, after storage.Record) storage.Record {
	out := make(storage.Record)
	for k, v := range after {
		prev, ok := before[k]
		if !ok || !reflect.DeepEqual(prev, v) {
			out[k] = v
		}
	}
	return out
}

func decodeBinary(value interface{}) ([]byte, bool) {
	switch v := value.(type) {
	case []byte:
		return v, true
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, false
		}
		return decoded, true
	default:
		return nil, false
	}
}
