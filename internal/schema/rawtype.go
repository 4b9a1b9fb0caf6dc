package schema

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// RawType is the declared type of a raw text value.
type RawType int

const (
	// RawText accepts any valid UTF-8 string, including the empty string.
	RawText RawType = iota
	// RawDecimal accepts strings that parse as a decimal number.
	RawDecimal
)

func (t RawType) String() string {
	switch t {
	case RawText:
		return "text"
	case RawDecimal:
		return "decimal"
	default:
		return fmt.Sprintf("RawType(%d)", int(t))
	}
}

var errInvalidUTF8 = errors.New("not valid UTF-8 text")

// Check reports whether value can be interpreted as t.
func (t RawType) Check(value string) error {
	switch t {
	case RawText:
		if !utf8.ValidString(value) {
			return errInvalidUTF8
		}
		return nil
	case RawDecimal:
		if _, err := decimal.NewFromString(value); err != nil {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unsupported raw type %d", int(t))
	}
}
