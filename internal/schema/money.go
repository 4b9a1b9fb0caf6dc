package schema

import (
	"github.com/shopspring/decimal"
)

// MoneyParts are the validated raw halves of a monetary amount.
type MoneyParts struct {
	Whole    string
	Fraction string
}

// Text returns the amount as written: whole and fraction joined by a dot.
func (p MoneyParts) Text() string {
	return p.Whole + "." + p.Fraction
}

// MoneyField merges a whole-units column and a fractional-units column into
// one decimal amount.
//
// The halves are joined as text, so {"euro": "12", "cents": "5"} and
// {"euro": "12", "cents": "50"} both yield 12.5. This mirrors how the source
// banks export the split amount; it is not whole + fraction/100.
type MoneyField struct {
	name     string
	whole    TypedField
	fraction TypedField
}

// Money returns a composite field reading wholeKey and fractionKey.
func Money(name, wholeKey, fractionKey string) MoneyField {
	return MoneyField{
		name:     name,
		whole:    Text(name, wholeKey),
		fraction: Text(name, fractionKey),
	}
}

func (f MoneyField) Name() string { return f.name }
func (MoneyField) sealed()        {}

func (f MoneyField) SourceKeys() []string {
	return []string{f.whole.key, f.fraction.key}
}

func (f MoneyField) Validate(rec RawRecord) (any, error) {
	return f.validate(rec)
}

func (f MoneyField) validate(rec RawRecord) (MoneyParts, error) {
	whole, err := f.whole.validate(rec)
	if err != nil {
		return MoneyParts{}, err
	}
	fraction, err := f.fraction.validate(rec)
	if err != nil {
		return MoneyParts{}, err
	}
	return MoneyParts{Whole: whole, Fraction: fraction}, nil
}

// Transform returns the amount as a decimal.Decimal.
func (f MoneyField) Transform(rec RawRecord) (Column, error) {
	parts, err := f.validate(rec)
	if err != nil {
		return Column{}, err
	}
	text := parts.Text()
	amount, err := decimal.NewFromString(text)
	if err != nil {
		return Column{}, newFieldError(KindAmountParse, f.name, f.whole.key+"+"+f.fraction.key, text, err)
	}
	return Column{Name: f.name, Value: amount}, nil
}
