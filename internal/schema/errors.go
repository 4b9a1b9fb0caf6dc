package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the class of a validation failure.
type Kind string

const (
	KindMissingColumn    Kind = "MISSING_COLUMN"
	KindTypeMismatch     Kind = "TYPE_MISMATCH"
	KindInvalidDate      Kind = "INVALID_DATE"
	KindInvalidEnumValue Kind = "INVALID_ENUM_VALUE"
	KindAmountParse      Kind = "AMOUNT_PARSE_ERROR"
	KindUnknownFormat    Kind = "UNKNOWN_FORMAT"
)

// Sentinel errors, one per Kind. Use errors.Is against these.
var (
	ErrMissingColumn    = errors.New("missing column")
	ErrTypeMismatch     = errors.New("type mismatch")
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidEnumValue = errors.New("invalid enum value")
	ErrAmountParse      = errors.New("amount parse error")
	ErrUnknownFormat    = errors.New("unknown format")
)

var sentinels = map[Kind]error{
	KindMissingColumn:    ErrMissingColumn,
	KindTypeMismatch:     ErrTypeMismatch,
	KindInvalidDate:      ErrInvalidDate,
	KindInvalidEnumValue: ErrInvalidEnumValue,
	KindAmountParse:      ErrAmountParse,
	KindUnknownFormat:    ErrUnknownFormat,
}

// FieldError is returned when a single field rejects a raw record.
type FieldError struct {
	Kind   Kind
	Schema string // empty when the field is used outside a schema
	Field  string // canonical column name
	Column string // raw column name that carried Value
	Value  string
	Err    error // underlying parse error, may be nil
}

func newFieldError(kind Kind, field, column, value string, err error) *FieldError {
	return &FieldError{
		Kind:   kind,
		Field:  field,
		Column: column,
		Value:  value,
		Err:    err,
	}
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	var b strings.Builder
	if e.Schema != "" {
		fmt.Fprintf(&b, "%s: ", e.Schema)
	}
	fmt.Fprintf(&b, "field %q", e.Field)
	if e.Column != "" && e.Column != e.Field {
		fmt.Fprintf(&b, " (column %q)", e.Column)
	}
	switch e.Kind {
	case KindMissingColumn:
		b.WriteString(": column is missing")
	default:
		fmt.Fprintf(&b, ": %s: value %q", strings.ToLower(string(e.Kind)), e.Value)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying parse error.
func (e *FieldError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's Kind.
func (e *FieldError) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// UnknownFormatError is returned by Registry.Resolve when no schema expects
// exactly the given column set.
type UnknownFormatError struct {
	Columns []string
}

func (e *UnknownFormatError) Error() string {
	return fmt.Sprintf("no registered format for columns %v", e.Columns)
}

func (e *UnknownFormatError) Is(target error) bool {
	return target == ErrUnknownFormat
}

// KindOf returns the Kind carried by err, or "" when err is not an engine error.
func KindOf(err error) Kind {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var ue *UnknownFormatError
	if errors.As(err, &ue) {
		return KindUnknownFormat
	}
	return ""
}
