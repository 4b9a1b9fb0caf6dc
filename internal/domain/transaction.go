package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-normalizer/internal/schema"
)

// Transaction is a canonical record with typed values.
// Database sinks map it into their own row types.
type Transaction struct {
	Date   time.Time       // from "date" (DD-MM-YYYY)
	Type   string          // from "transaction": "add" or "remove"
	Amount decimal.Decimal // from "amount"
	From   string          // from "from"
	To     string          // from "to"
}

// FromCanonical converts a record produced by a built-in schema.
func FromCanonical(rec schema.CanonicalRecord) (Transaction, error) {
	var tx Transaction

	date, err := stringColumn(rec, schema.ColumnDate)
	if err != nil {
		return Transaction{}, err
	}
	tx.Date, err = time.Parse(schema.CanonicalDateLayout, date)
	if err != nil {
		return Transaction{}, fmt.Errorf("FromCanonical: date %q: %w", date, err)
	}

	if tx.Type, err = stringColumn(rec, schema.ColumnTransaction); err != nil {
		return Transaction{}, err
	}
	if tx.From, err = stringColumn(rec, schema.ColumnFrom); err != nil {
		return Transaction{}, err
	}
	if tx.To, err = stringColumn(rec, schema.ColumnTo); err != nil {
		return Transaction{}, err
	}

	amount, ok := rec.Get(schema.ColumnAmount)
	if !ok {
		return Transaction{}, fmt.Errorf("FromCanonical: missing %q", schema.ColumnAmount)
	}
	switch v := amount.(type) {
	case decimal.Decimal:
		tx.Amount = v
	case string:
		tx.Amount, err = decimal.NewFromString(v)
		if err != nil {
			return Transaction{}, fmt.Errorf("FromCanonical: amount %q: %w", v, err)
		}
	default:
		return Transaction{}, fmt.Errorf("FromCanonical: amount has type %T", amount)
	}

	return tx, nil
}

// Signed returns the amount with "remove" transactions negated.
func (t Transaction) Signed() decimal.Decimal {
	if t.Type == "remove" {
		return t.Amount.Neg()
	}
	return t.Amount
}

func stringColumn(rec schema.CanonicalRecord, name string) (string, error) {
	v, ok := rec.Get(name)
	if !ok {
		return "", fmt.Errorf("FromCanonical: missing %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("FromCanonical: %q has type %T", name, v)
	}
	return s, nil
}
