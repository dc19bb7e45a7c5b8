// Package record defines the unit of data routed by the writer stage: an ordered set of named, typed
// fields. A Record is immutable once built.
package record

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Field is a single named value of a record
type Field struct {
	Name  string
	Value any
}

type Record struct {
	// optional identifier supplied by the source, used as the key of sequence file entries
	// and to identify the record in error reports
	id     string
	fields []Field
	index  map[string]int
}

// New builds a record from fields, preserving their order.
// If the same name is given more than once, the last value wins but the first position is kept.
func New(fields ...Field) *Record {
	r := &Record{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		if i, ok := r.index[f.Name]; ok {
			r.fields[i].Value = f.Value
			continue
		}
		r.index[f.Name] = len(r.fields)
		r.fields = append(r.fields, f)
	}
	return r
}

// FromMap builds a record from a map. The field order is taken from order; any keys of m not present
// in order are appended in sorted order.
func FromMap(m map[string]any, order ...string) *Record {
	var fields = make([]Field, 0, len(m))
	seen := make(map[string]struct{}, len(order))
	for _, name := range order {
		if v, ok := m[name]; ok {
			fields = append(fields, Field{Name: name, Value: v})
			seen[name] = struct{}{}
		}
	}
	var rest []string
	for name := range m {
		if _, ok := seen[name]; !ok {
			rest = append(rest, name)
		}
	}
	slices.Sort(rest)
	for _, name := range rest {
		fields = append(fields, Field{Name: name, Value: m[name]})
	}
	return New(fields...)
}

// WithID returns a copy of the record carrying the given id
func (r *Record) WithID(id string) *Record {
	res := New(r.fields...)
	res.id = id
	return res
}

func (r *Record) ID() string {
	return r.id
}

// Get returns the value of the named field
func (r *Record) Get(name string) (any, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.fields[i].Value, true
}

func (r *Record) Len() int {
	return len(r.fields)
}

// Fields returns a copy of the fields in order
func (r *Record) Fields() []Field {
	res := make([]Field, len(r.fields))
	copy(res, r.fields)
	return res
}

func (r *Record) Names() []string {
	res := make([]string, len(r.fields))
	for i, f := range r.fields {
		res[i] = f.Name
	}
	return res
}

// Map returns the fields as a map. Values are not deep copied.
func (r *Record) Map() map[string]any {
	res := make(map[string]any, len(r.fields))
	for _, f := range r.fields {
		res[f.Name] = f.Value
	}
	return res
}

// Equal reports whether both records hold the same field set with the same values (order is ignored)
func (r *Record) Equal(other *Record) bool {
	if other == nil || r.Len() != other.Len() {
		return false
	}
	return maps.EqualFunc(r.Map(), other.Map(), func(a, b any) bool {
		return fmt.Sprintf("%#v", a) == fmt.Sprintf("%#v", b)
	})
}

func (r *Record) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, f := range r.fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %v", f.Name, f.Value)
	}
	sb.WriteString("}")
	return sb.String()
}
