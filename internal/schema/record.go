package schema

// RawRecord is one input row: raw column name to raw text value.
type RawRecord map[string]string

// Keys returns the raw column names in unspecified order.
func (r RawRecord) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	return keys
}

// Column is one canonical output value.
type Column struct {
	Name  string
	Value any
}

// CanonicalRecord is an ordered canonical row. The order follows the field
// order of the schema that produced it.
type CanonicalRecord []Column

// Get returns the value of the named column.
func (c CanonicalRecord) Get(name string) (any, bool) {
	for _, col := range c {
		if col.Name == name {
			return col.Value, true
		}
	}
	return nil, false
}

// Names returns the column names in order.
func (c CanonicalRecord) Names() []string {
	names := make([]string, len(c))
	for i, col := range c {
		names[i] = col.Name
	}
	return names
}

// Map returns the record as an unordered map, e.g. for JSON responses.
func (c CanonicalRecord) Map() map[string]any {
	m := make(map[string]any, len(c))
	for _, col := range c {
		m[col.Name] = col.Value
	}
	return m
}
