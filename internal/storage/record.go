package storage

// Record is a single entity row as a plain map, keyed by field name.
// Relation values may appear either as nested Records (or []Record for
// collection relations) or as raw identifiers, depending on how the record
// was produced.
type Record map[string]interface{}

// Clone returns a shallow copy of the record
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge copies all values from other into the record, overwriting on conflict
func (r Record) Merge(other Record) {
	for k, v := range other {
		r[k] = v
	}
}

// Has returns true if the record contains the given key
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}
