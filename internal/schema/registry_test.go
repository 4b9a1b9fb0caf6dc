package schema

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ResolveIsLeftInverseOfExpectedRawKeys(t *testing.T) {
	r := mustDefault(t)
	require.Len(t, r.Schemas(), 4)

	for _, s := range r.Schemas() {
		got, err := r.Resolve(s.ExpectedRawKeys())
		require.NoError(t, err, s.Name())
		assert.Same(t, s, got)
	}
}

func TestRegistry_ResolveIgnoresOrder(t *testing.T) {
	r := mustDefault(t)

	s, err := r.Resolve([]string{"to", "from", "cents", "euro", "type", "date_readable"})
	require.NoError(t, err)
	assert.Equal(t, FormatBank3, s.Name())
}

func TestRegistry_ResolveRejectsSubsetAndSuperset(t *testing.T) {
	r := mustDefault(t)

	for _, s := range r.Schemas() {
		keys := s.ExpectedRawKeys()

		for i := range keys {
			subset := append(append([]string(nil), keys[:i]...), keys[i+1:]...)
			_, err := r.Resolve(subset)
			assert.ErrorIs(t, err, ErrUnknownFormat, "%s without %s", s.Name(), keys[i])
		}

		superset := append(append([]string(nil), keys...), "memo")
		_, err := r.Resolve(superset)
		assert.ErrorIs(t, err, ErrUnknownFormat, "%s plus memo", s.Name())
	}
}

func TestRegistry_ResolveMissingToColumn(t *testing.T) {
	r := mustDefault(t)

	_, err := r.Resolve([]string{"timestamp", "type", "amount", "from"})
	require.ErrorIs(t, err, ErrUnknownFormat)

	var ue *UnknownFormatError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, []string{"timestamp", "type", "amount", "from"}, ue.Columns)
	assert.Equal(t, KindUnknownFormat, KindOf(err))
}

func TestRegistry_FirstRegisteredWins(t *testing.T) {
	r, err := NewRegistry(
		Definition{Name: "first", Fields: []Field{Text("from", "a"), Text("to", "b")}},
		Definition{Name: "second", Fields: []Field{Text("to", "a"), Text("from", "b")}},
	)
	require.NoError(t, err)

	s, err := r.Resolve([]string{"b", "a"})
	require.NoError(t, err)
	assert.Equal(t, "first", s.Name())
}

func TestNewRegistry_Errors(t *testing.T) {
	_, err := NewRegistry(
		Definition{Name: "x", Fields: []Field{Text("from", "a")}},
		Definition{Name: "x", Fields: []Field{Text("from", "b")}},
	)
	assert.Error(t, err)

	_, err = NewRegistry(Definition{Name: "bad", Fields: []Field{Text("from", "a"), Text("from", "b")}})
	assert.Error(t, err)
}

func TestNewRegistry_Empty(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	_, err = r.Resolve(CanonicalColumns)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestRegistry_SchemasReturnsCopy(t *testing.T) {
	r := mustDefault(t)
	list := r.Schemas()
	list[0] = nil

	assert.NotNil(t, r.Schemas()[0])
}

func TestScenario_Bank1(t *testing.T) {
	r := mustDefault(t)
	raw := RawRecord{"timestamp": "Jan 05 2020", "type": "add", "amount": "100", "from": "A", "to": "B"}

	s, err := r.Resolve(raw.Keys())
	require.NoError(t, err)
	assert.Equal(t, FormatBank1, s.Name())

	got, err := s.Transform(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"date":        "05-01-2020",
		"transaction": "add",
		"amount":      "100",
		"from":        "A",
		"to":          "B",
	}, got.Map())
}

func TestScenario_Bank3MergesMoney(t *testing.T) {
	r := mustDefault(t)
	raw := RawRecord{"date_readable": "05 Jan 2020", "type": "remove", "euro": "12", "cents": "50", "from": "A", "to": "B"}

	s, err := r.Resolve(raw.Keys())
	require.NoError(t, err)
	assert.Equal(t, FormatBank3, s.Name())

	got, err := s.Transform(raw)
	require.NoError(t, err)
	assert.Equal(t, CanonicalColumns, got.Names())

	amount, _ := got.Get("amount")
	assert.True(t, decimal.NewFromFloat(12.5).Equal(amount.(decimal.Decimal)))

	date, _ := got.Get("date")
	assert.Equal(t, "05-01-2020", date)
	tx, _ := got.Get("transaction")
	assert.Equal(t, "remove", tx)
}

func TestScenario_Bank2(t *testing.T) {
	r := mustDefault(t)
	raw := RawRecord{"date": "05-01-2020", "transaction": "remove", "amounts": "7.25", "from": "A", "to": "B"}

	s, err := r.Resolve(raw.Keys())
	require.NoError(t, err)
	assert.Equal(t, FormatBank2, s.Name())

	got, err := s.Transform(raw)
	require.NoError(t, err)
	amount, _ := got.Get("amount")
	assert.Equal(t, "7.25", amount)
}

func TestScenario_UnpaddedDates(t *testing.T) {
	r := mustDefault(t)

	tests := []struct {
		format string
		raw    RawRecord
	}{
		{FormatBank1, RawRecord{"timestamp": "Jan 5 2020", "type": "add", "amount": "100", "from": "A", "to": "B"}},
		{FormatBank2, RawRecord{"date": "5-1-2020", "transaction": "add", "amounts": "100", "from": "A", "to": "B"}},
		{FormatBank3, RawRecord{"date_readable": "5 Jan 2020", "type": "add", "euro": "100", "cents": "0", "from": "A", "to": "B"}},
		{FormatCanonical, RawRecord{"date": "5-1-2020", "transaction": "add", "amount": "100", "from": "A", "to": "B"}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			s, err := r.Resolve(tt.raw.Keys())
			require.NoError(t, err)
			require.Equal(t, tt.format, s.Name())

			got, err := s.Transform(tt.raw)
			require.NoError(t, err)
			date, _ := got.Get(ColumnDate)
			assert.Equal(t, "05-01-2020", date)
		})
	}
}

func TestScenario_TextAmountsMustBeDecimal(t *testing.T) {
	r := mustDefault(t)

	tests := []struct {
		format string
		raw    RawRecord
		column string
	}{
		{FormatBank1, RawRecord{"timestamp": "Jan 05 2020", "type": "add", "amount": "1,000", "from": "A", "to": "B"}, "amount"},
		{FormatBank2, RawRecord{"date": "05-01-2020", "transaction": "add", "amounts": "1,000", "from": "A", "to": "B"}, "amounts"},
		{FormatBank2, RawRecord{"date": "05-01-2020", "transaction": "add", "amounts": "", "from": "A", "to": "B"}, "amounts"},
	}

	for _, tt := range tests {
		t.Run(tt.format+"/"+tt.raw[tt.column], func(t *testing.T) {
			s, err := r.Resolve(tt.raw.Keys())
			require.NoError(t, err)
			require.Equal(t, tt.format, s.Name())

			_, err = s.Transform(tt.raw)
			require.ErrorIs(t, err, ErrTypeMismatch)

			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, ColumnAmount, fe.Field)
			assert.Equal(t, tt.column, fe.Column)
			assert.Equal(t, tt.raw[tt.column], fe.Value)
		})
	}
}
