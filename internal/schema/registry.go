package schema

import (
	"fmt"
)

// Definition describes one source format to be registered.
type Definition struct {
	Name   string
	Fields []Field
}

// Registry is the immutable, ordered set of known schemas.
type Registry struct {
	schemas []*Schema
	byName  map[string]*Schema
}

// NewRegistry builds a registry from defs, in order. It depends on nothing
// but its arguments, so tests can build registries from alternate definitions.
//
// Two definitions with the same raw column set are accepted; Resolve returns
// the first registered one.
func NewRegistry(defs ...Definition) (*Registry, error) {
	r := &Registry{
		schemas: make([]*Schema, 0, len(defs)),
		byName:  make(map[string]*Schema, len(defs)),
	}
	for _, d := range defs {
		if _, dup := r.byName[d.Name]; dup {
			return nil, fmt.Errorf("registry: format %q defined twice", d.Name)
		}
		s, err := NewSchema(d.Name, d.Fields...)
		if err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
		r.schemas = append(r.schemas, s)
		r.byName[s.name] = s
	}
	return r, nil
}

// Resolve returns the first schema whose raw columns equal columns as a set.
// Extra or missing columns match nothing and yield an *UnknownFormatError.
func (r *Registry) Resolve(columns []string) (*Schema, error) {
	for _, s := range r.schemas {
		if s.Matches(columns) {
			return s, nil
		}
	}
	return nil, &UnknownFormatError{Columns: append([]string(nil), columns...)}
}

// Schemas returns the registered schemas in registration order.
func (r *Registry) Schemas() []*Schema {
	return append([]*Schema(nil), r.schemas...)
}

// Lookup returns the schema registered under name.
func (r *Registry) Lookup(name string) (*Schema, bool) {
	s, ok := r.byName[name]
	return s, ok
}
