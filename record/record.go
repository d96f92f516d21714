// Package record defines the flat, string-valued shape every cached object is
// converted to, plus the scalar conversions and a reflective struct mapper
// that types can use to satisfy the record contract without hand-written
// field lists.
package record

import "sort"

// Field is one (name, value) pair of a Record.
type Field struct {
	Name  string
	Value string
}

// Record is the ordered field list produced from a typed object.
// It is stored as a Redis hash by the remote engine.
type Record []Field

// Get returns the value of the first field called name.
func (r Record) Get(name string) (string, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Map returns the record as a field map. Later duplicates win, matching HSET.
func (r Record) Map() map[string]string {
	m := make(map[string]string, len(r))
	for _, f := range r {
		m[f.Name] = f.Value
	}
	return m
}

// Args flattens the record into name, value, name, value... for HSET.
func (r Record) Args() []any {
	out := make([]any, 0, len(r)*2)
	for _, f := range r {
		out = append(out, f.Name, f.Value)
	}
	return out
}

// FromMap builds a Record from a field map. Fields are ordered by name since
// neither Go maps nor HGETALL guarantee an order.
func FromMap(m map[string]string) Record {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make(Record, 0, len(m))
	for _, n := range names {
		out = append(out, Field{Name: n, Value: m[n]})
	}
	return out
}
