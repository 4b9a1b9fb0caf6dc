package schema

import (
	"strings"
	"time"
)

// CanonicalDateLayout is the layout of every canonical date value (DD-MM-YYYY).
const CanonicalDateLayout = "02-01-2006"

// Field validates one or more raw columns and produces one canonical column.
//
// The set of implementations is closed: TypedField, DateField, EnumField and
// MoneyField. Use the constructors Text, Decimal, Date, OneOf and Money.
type Field interface {
	// Name is the canonical column this field produces.
	Name() string

	// SourceKeys are the raw columns this field reads.
	SourceKeys() []string

	// Validate extracts and checks the field's raw value(s). The concrete
	// result type depends on the variant: string for TypedField and
	// EnumField, time.Time for DateField, MoneyParts for MoneyField.
	Validate(rec RawRecord) (any, error)

	// Transform validates rec and returns the canonical column.
	Transform(rec RawRecord) (Column, error)

	sealed()
}

func lookup(rec RawRecord, field, key string) (string, error) {
	v, ok := rec[key]
	if !ok {
		return "", newFieldError(KindMissingColumn, field, key, "", nil)
	}
	return v, nil
}

// TypedField passes a raw value through unchanged after a type check.
type TypedField struct {
	name string
	key  string
	typ  RawType
}

// Text returns a field that copies the text column key into canonical column name.
func Text(name, key string) TypedField {
	return TypedField{name: name, key: key, typ: RawText}
}

// Decimal returns a field that requires key to hold a decimal number and
// copies its text unchanged into canonical column name.
func Decimal(name, key string) TypedField {
	return TypedField{name: name, key: key, typ: RawDecimal}
}

func (f TypedField) Name() string         { return f.name }
func (f TypedField) SourceKeys() []string { return []string{f.key} }
func (f TypedField) RawType() RawType     { return f.typ }
func (TypedField) sealed()                {}

func (f TypedField) Validate(rec RawRecord) (any, error) {
	return f.validate(rec)
}

func (f TypedField) validate(rec RawRecord) (string, error) {
	v, err := lookup(rec, f.name, f.key)
	if err != nil {
		return "", err
	}
	if err := f.typ.Check(v); err != nil {
		return "", newFieldError(KindTypeMismatch, f.name, f.key, v, err)
	}
	return v, nil
}

func (f TypedField) Transform(rec RawRecord) (Column, error) {
	v, err := f.validate(rec)
	if err != nil {
		return Column{}, err
	}
	return Column{Name: f.name, Value: v}, nil
}

// DateField parses a date with a source layout and emits it in
// CanonicalDateLayout.
type DateField struct {
	name   string
	key    string
	layout string
}

// Date returns a field reading key with the Go reference layout.
func Date(name, key, layout string) DateField {
	return DateField{name: name, key: key, layout: layout}
}

func (f DateField) Name() string         { return f.name }
func (f DateField) SourceKeys() []string { return []string{f.key} }
func (f DateField) Layout() string       { return f.layout }
func (DateField) sealed()                {}

func (f DateField) Validate(rec RawRecord) (any, error) {
	return f.validate(rec)
}

func (f DateField) validate(rec RawRecord) (time.Time, error) {
	v, err := lookup(rec, f.name, f.key)
	if err != nil {
		return time.Time{}, err
	}
	if err := RawText.Check(v); err != nil {
		return time.Time{}, newFieldError(KindInvalidDate, f.name, f.key, v, err)
	}
	t, err := time.Parse(f.layout, v)
	if err != nil {
		return time.Time{}, newFieldError(KindInvalidDate, f.name, f.key, v, err)
	}
	return t, nil
}

func (f DateField) Transform(rec RawRecord) (Column, error) {
	t, err := f.validate(rec)
	if err != nil {
		return Column{}, err
	}
	return Column{Name: f.name, Value: t.Format(CanonicalDateLayout)}, nil
}

// EnumField requires the raw text to be one of a fixed set of values.
type EnumField struct {
	name    string
	key     string
	allowed []string
}

// OneOf returns a field accepting only the given values (exact, case-sensitive).
func OneOf(name, key string, allowed ...string) EnumField {
	return EnumField{name: name, key: key, allowed: append([]string(nil), allowed...)}
}

func (f EnumField) Name() string         { return f.name }
func (f EnumField) SourceKeys() []string { return []string{f.key} }
func (EnumField) sealed()                {}

// Allowed returns a copy of the accepted values.
func (f EnumField) Allowed() []string {
	return append([]string(nil), f.allowed...)
}

func (f EnumField) Validate(rec RawRecord) (any, error) {
	return f.validate(rec)
}

func (f EnumField) validate(rec RawRecord) (string, error) {
	v, err := lookup(rec, f.name, f.key)
	if err != nil {
		return "", err
	}
	if err := RawText.Check(v); err != nil {
		return "", newFieldError(KindTypeMismatch, f.name, f.key, v, err)
	}
	for _, a := range f.allowed {
		if v == a {
			return v, nil
		}
	}
	return "", newFieldError(KindInvalidEnumValue, f.name, f.key, v, &enumError{allowed: f.allowed})
}

func (f EnumField) Transform(rec RawRecord) (Column, error) {
	v, err := f.validate(rec)
	if err != nil {
		return Column{}, err
	}
	return Column{Name: f.name, Value: v}, nil
}

type enumError struct {
	allowed []string
}

func (e *enumError) Error() string {
	return "expected one of [" + strings.Join(e.allowed, ", ") + "]"
}
