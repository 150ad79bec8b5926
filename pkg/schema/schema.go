// Package schema implements column type inference for delimited files.
// Types form a small lattice so that merging schemas from many files is
// order-independent and only ever widens.
package schema

import (
	"strconv"
	"strings"
)

// Type is an inferred column type. The numeric order of the constants is
// the widening order: merging two types takes the larger value, except that
// boolean and integer/number have no common supertype below string.
type Type int

const (
	// TypeNull means no non-empty value has been observed yet.
	TypeNull Type = iota
	TypeBoolean
	TypeInteger
	TypeNumber
	// TypeString absorbs everything.
	TypeString
)

func (t Type) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeBoolean:
		return "boolean"
	case TypeInteger:
		return "integer"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	default:
		return "unknown"
	}
}

// ParseType parses a type name. Unknown names map to TypeString.
func ParseType(s string) Type {
	switch strings.ToLower(s) {
	case "null":
		return TypeNull
	case "boolean", "bool":
		return TypeBoolean
	case "integer", "int":
		return TypeInteger
	case "number", "float", "double":
		return TypeNumber
	default:
		return TypeString
	}
}

// Merge returns the least upper bound of two types.
// It is commutative and associative, and Merge(a, b) >= a and >= b.
func Merge(a, b Type) Type {
	if a == b {
		return a
	}
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo == TypeNull {
		return hi
	}
	// boolean has no numeric supertype: anything mixing boolean with
	// integer or number widens all the way to string.
	if lo == TypeBoolean {
		return TypeString
	}
	// integer < number < string along a single chain.
	return hi
}

// InferValue infers the narrowest type for a single raw field value.
// Empty values infer as TypeNull; the caller decides nullability.
func InferValue(s string) Type {
	s = strings.TrimSpace(s)
	if s == "" {
		return TypeNull
	}
	switch strings.ToLower(s) {
	case "true", "false":
		return TypeBoolean
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return TypeInteger
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return TypeNumber
	}
	return TypeString
}

// Column is one inferred column.
type Column struct {
	Name     string
	Type     Type
	Nullable bool
}

// Schema is an ordered set of columns. Column order follows first
// observation order so emitted records keep a stable field order.
type Schema struct {
	columns []Column
	index   map[string]int
}

// New returns an empty schema.
func New() *Schema {
	return &Schema{index: make(map[string]int)}
}

// Columns returns the columns in order. The slice must not be mutated.
func (s *Schema) Columns() []Column {
	return s.columns
}

// Len returns the number of columns.
func (s *Schema) Len() int {
	return len(s.columns)
}

// Lookup returns the column with the given name.
func (s *Schema) Lookup(name string) (Column, bool) {
	i, ok := s.index[name]
	if !ok {
		return Column{}, false
	}
	return s.columns[i], true
}

// Clone returns a deep copy.
func (s *Schema) Clone() *Schema {
	c := New()
	c.columns = append([]Column(nil), s.columns...)
	for k, v := range s.index {
		c.index[k] = v
	}
	return c
}

// AddColumn appends a column if absent, merging types if present.
// It reports whether the schema actually changed.
func (s *Schema) AddColumn(col Column) bool {
	if i, ok := s.index[col.Name]; ok {
		changed := false
		merged := Merge(s.columns[i].Type, col.Type)
		if merged != s.columns[i].Type {
			s.columns[i].Type = merged
			changed = true
		}
		if col.Nullable && !s.columns[i].Nullable {
			s.columns[i].Nullable = true
			changed = true
		}
		return changed
	}
	s.index[col.Name] = len(s.columns)
	s.columns = append(s.columns, col)
	return true
}

// Widen widens a single column to the merge of its current type and t.
// It reports whether the schema changed. Widening an unknown column is a
// no-op: rows are only coerced against known columns.
func (s *Schema) Widen(name string, t Type) bool {
	i, ok := s.index[name]
	if !ok {
		return false
	}
	merged := Merge(s.columns[i].Type, t)
	if merged == s.columns[i].Type {
		return false
	}
	s.columns[i].Type = merged
	return true
}

// MergeSchema merges other into s and reports whether s changed.
// Columns present only in other are added; columns present only in s
// become nullable (the other file has no values for them); shared columns
// take the type least upper bound. The operation is monotone: repeated
// merges with the same input are no-ops.
func (s *Schema) MergeSchema(other *Schema) bool {
	if len(s.columns) == 0 {
		// First file for this table: adopt its columns as-is.
		changed := false
		for _, col := range other.columns {
			if s.AddColumn(col) {
				changed = true
			}
		}
		return changed
	}
	changed := false
	for _, col := range other.columns {
		if _, ok := s.index[col.Name]; !ok {
			// Column missing from files merged so far: nullable.
			col.Nullable = true
			if s.AddColumn(col) {
				changed = true
			}
			continue
		}
		if s.AddColumn(col) {
			changed = true
		}
	}
	for i := range s.columns {
		if _, ok := other.index[s.columns[i].Name]; !ok && !s.columns[i].Nullable {
			s.columns[i].Nullable = true
			changed = true
		}
	}
	return changed
}

// Finalize replaces null-only columns with string. A column that was empty
// in every sampled row carries no type evidence, and string is the only
// safe choice. Finalize is idempotent.
func (s *Schema) Finalize() {
	for i := range s.columns {
		if s.columns[i].Type == TypeNull {
			s.columns[i].Type = TypeString
			s.columns[i].Nullable = true
		}
	}
}
