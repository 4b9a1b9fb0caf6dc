// Package schema is the transformation engine that maps bank-specific CSV
// records onto the canonical transaction shape.
//
// A Schema is an ordered list of Fields describing one source format. The
// Registry holds every known Schema and resolves an input header to the one
// whose raw columns match exactly. Schemas and the Registry are immutable
// after construction and safe for concurrent use.
package schema

import (
	"errors"
	"fmt"
	"sort"
)

// Canonical column names.
const (
	ColumnDate        = "date"
	ColumnTransaction = "transaction"
	ColumnAmount      = "amount"
	ColumnFrom        = "from"
	ColumnTo          = "to"
)

// CanonicalColumns is the fixed canonical column order.
var CanonicalColumns = []string{ColumnDate, ColumnTransaction, ColumnAmount, ColumnFrom, ColumnTo}

// TransactionTypes are the accepted values of the transaction column.
var TransactionTypes = []string{"remove", "add"}

// Schema is one source format: the fields that read its columns, in
// canonical output order.
type Schema struct {
	name    string
	fields  []Field
	rawKeys []string // sorted
	columns []string
}

// NewSchema builds a schema from fields. It fails when two fields read the
// same raw column or produce the same canonical column.
func NewSchema(name string, fields ...Field) (*Schema, error) {
	if name == "" {
		return nil, errors.New("schema: name is required")
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("schema %q: no fields", name)
	}

	s := &Schema{
		name:    name,
		fields:  make([]Field, 0, len(fields)),
		columns: make([]string, 0, len(fields)),
	}
	seenKeys := make(map[string]string)
	seenCols := make(map[string]bool)

	for i, f := range fields {
		if f == nil {
			return nil, fmt.Errorf("schema %q: field %d is nil", name, i)
		}
		if f.Name() == "" {
			return nil, fmt.Errorf("schema %q: field %d has no name", name, i)
		}
		if seenCols[f.Name()] {
			return nil, fmt.Errorf("schema %q: canonical column %q produced twice", name, f.Name())
		}
		seenCols[f.Name()] = true

		for _, k := range f.SourceKeys() {
			if k == "" {
				return nil, fmt.Errorf("schema %q: field %q has an empty source key", name, f.Name())
			}
			if other, ok := seenKeys[k]; ok {
				return nil, fmt.Errorf("schema %q: raw column %q read by both %q and %q", name, k, other, f.Name())
			}
			seenKeys[k] = f.Name()
			s.rawKeys = append(s.rawKeys, k)
		}

		s.fields = append(s.fields, f)
		s.columns = append(s.columns, f.Name())
	}

	sort.Strings(s.rawKeys)
	return s, nil
}

// Name returns the format name.
func (s *Schema) Name() string { return s.name }

// Fields returns a copy of the schema's fields.
func (s *Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// ExpectedRawKeys returns the sorted raw column names the schema reads,
// with composite fields flattened.
func (s *Schema) ExpectedRawKeys() []string {
	return append([]string(nil), s.rawKeys...)
}

// Columns returns the canonical column names in output order.
func (s *Schema) Columns() []string {
	return append([]string(nil), s.columns...)
}

// Matches reports whether columns, taken as a set, equals ExpectedRawKeys.
func (s *Schema) Matches(columns []string) bool {
	set := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		set[c] = struct{}{}
	}
	if len(set) != len(s.rawKeys) {
		return false
	}
	for _, k := range s.rawKeys {
		if _, ok := set[k]; !ok {
			return false
		}
	}
	return true
}

// Transform applies every field in order and returns the canonical record.
// The first failing field aborts the record; no partial output is returned.
func (s *Schema) Transform(rec RawRecord) (CanonicalRecord, error) {
	out := make(CanonicalRecord, 0, len(s.fields))
	for _, f := range s.fields {
		col, err := f.Transform(rec)
		if err != nil {
			var fe *FieldError
			if errors.As(err, &fe) {
				fe.Schema = s.name
			}
			return nil, err
		}
		out = append(out, col)
	}
	return out, nil
}
