package schema

// Built-in source formats.
const (
	FormatBank1     = "bank1"
	FormatBank2     = "bank2"
	FormatBank3     = "bank3"
	FormatCanonical = "canonical"
)

// Source date layouts. Days and numeric months may be written with or
// without a leading zero.
const (
	bank1DateLayout     = "Jan 2 2006"
	bank2DateLayout     = "2-1-2006"
	bank3DateLayout     = "2 Jan 2006"
	canonicalDateLayout = "2-1-2006"
)

// Builtin returns the definitions of every supported bank export, in
// resolution order. Each call returns fresh values.
func Builtin() []Definition {
	return []Definition{
		{
			// timestamp,type,amount,from,to
			Name: FormatBank1,
			Fields: []Field{
				Date(ColumnDate, "timestamp", bank1DateLayout),
				OneOf(ColumnTransaction, "type", TransactionTypes...),
				Decimal(ColumnAmount, "amount"),
				Text(ColumnFrom, "from"),
				Text(ColumnTo, "to"),
			},
		},
		{
			// date,transaction,amounts,from,to
			Name: FormatBank2,
			Fields: []Field{
				Date(ColumnDate, "date", bank2DateLayout),
				OneOf(ColumnTransaction, "transaction", TransactionTypes...),
				Decimal(ColumnAmount, "amounts"),
				Text(ColumnFrom, "from"),
				Text(ColumnTo, "to"),
			},
		},
		{
			// date_readable,type,euro,cents,from,to
			Name: FormatBank3,
			Fields: []Field{
				Date(ColumnDate, "date_readable", bank3DateLayout),
				OneOf(ColumnTransaction, "type", TransactionTypes...),
				Money(ColumnAmount, "euro", "cents"),
				Text(ColumnFrom, "from"),
				Text(ColumnTo, "to"),
			},
		},
		{
			// Our own output; normalising it again is a no-op.
			Name:   FormatCanonical,
			Fields: CanonicalFields(),
		},
	}
}

// CanonicalFields is the identity mapping over CanonicalColumns.
func CanonicalFields() []Field {
	return []Field{
		Date(ColumnDate, ColumnDate, canonicalDateLayout),
		OneOf(ColumnTransaction, ColumnTransaction, TransactionTypes...),
		Decimal(ColumnAmount, ColumnAmount),
		Text(ColumnFrom, ColumnFrom),
		Text(ColumnTo, ColumnTo),
	}
}

// Default builds the registry of built-in formats.
func Default() (*Registry, error) {
	return NewRegistry(Builtin()...)
}
