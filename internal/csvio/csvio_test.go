package csvio

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/bank-normalizer/internal/schema"
)

func readAll(t *testing.T, r *Reader) ([]Row, []error) {
	t.Helper()
	var rows []Row
	var errs []error
	for {
		row, err := r.Next()
		if err == io.EOF {
			return rows, errs
		}
		var re *RowError
		if errors.As(err, &re) {
			errs = append(errs, err)
			continue
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
}

func TestReader_Basic(t *testing.T) {
	in := "timestamp,type,amount,from,to\n" +
		"Jan 05 2020, add ,100,A,B\n" +
		"\n" +
		"Jan 06 2020,remove,5.5,B,A\n"

	r, err := NewReader(strings.NewReader(in), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"timestamp", "type", "amount", "from", "to"}, r.Header())

	rows, errs := readAll(t, r)
	assert.Empty(t, errs)
	require.Len(t, rows, 2)

	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, schema.RawRecord{
		"timestamp": "Jan 05 2020", "type": "add", "amount": "100", "from": "A", "to": "B",
	}, rows[0].Record)
	assert.Equal(t, 4, rows[1].Line)
}

func TestReader_StripsBOM(t *testing.T) {
	in := "\xEF\xBB\xBFdate,transaction\n05-01-2020,add\n"

	r, err := NewReader(strings.NewReader(in), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"date", "transaction"}, r.Header())
}

func TestReader_Windows1252(t *testing.T) {
	// 0xE9 is e-acute in windows-1252.
	in := "from,to\nCaf\xE9,B\n"

	r, err := NewReader(strings.NewReader(in), Options{Encoding: "windows-1252"})
	require.NoError(t, err)

	rows, _ := readAll(t, r)
	require.Len(t, rows, 1)
	assert.Equal(t, "Café", rows[0].Record["from"])
}

func TestReader_UTF8PassesInvalidBytesThrough(t *testing.T) {
	r, err := NewReader(strings.NewReader("from,to\n\xff,B\n"), Options{})
	require.NoError(t, err)

	rows, _ := readAll(t, r)
	require.Len(t, rows, 1)
	assert.Equal(t, "\xff", rows[0].Record["from"])
}

func TestReader_Semicolon(t *testing.T) {
	r, err := NewReader(strings.NewReader("from;to\nA;B\n"), Options{Comma: ';'})
	require.NoError(t, err)

	rows, _ := readAll(t, r)
	require.Len(t, rows, 1)
	assert.Equal(t, "B", rows[0].Record["to"])
}

func TestReader_HeaderErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty file", ""},
		{"duplicate column", "from,to,from\n"},
		{"duplicate after trim", "from, from\n"},
		{"blank column", "from,,to\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(strings.NewReader(tt.in), Options{})
			assert.ErrorIs(t, err, ErrHeader)
		})
	}
}

func TestReader_UnknownEncoding(t *testing.T) {
	_, err := NewReader(strings.NewReader("a\n"), Options{Encoding: "klingon"})
	assert.Error(t, err)
}

func TestReader_CellCountMismatchIsRowError(t *testing.T) {
	in := "from,to\nA\nA,B,C\nC,D\n"

	r, err := NewReader(strings.NewReader(in), Options{})
	require.NoError(t, err)

	rows, errs := readAll(t, r)
	require.Len(t, errs, 2)
	require.Len(t, rows, 1)
	assert.Equal(t, "C", rows[0].Record["from"])

	var re *RowError
	require.True(t, errors.As(errs[0], &re))
	assert.Equal(t, 2, re.Line)
	assert.Contains(t, re.Error(), "expected 2 cells, got 1")
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, schema.CanonicalColumns)
	require.NoError(t, err)

	require.NoError(t, w.Write(schema.CanonicalRecord{
		{Name: "date", Value: "05-01-2020"},
		{Name: "transaction", Value: "add"},
		{Name: "amount", Value: decimal.RequireFromString("12.50")},
		{Name: "from", Value: "A, Inc"},
		{Name: "to", Value: "B"},
	}))
	require.NoError(t, w.Close())

	assert.Equal(t,
		"date,transaction,amount,from,to\n05-01-2020,add,12.5,\"A, Inc\",B\n",
		buf.String())
}

func TestWriter_MissingColumnIsEmpty(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, []string{"from", "to"})
	require.NoError(t, err)

	require.NoError(t, w.Write(schema.CanonicalRecord{{Name: "to", Value: "B"}}))
	require.NoError(t, w.Close())
	assert.Equal(t, "from,to\n,B\n", buf.String())
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "", FormatValue(nil))
	assert.Equal(t, "x", FormatValue("x"))
	assert.Equal(t, "0.3", FormatValue(decimal.RequireFromString("0.30")))
	assert.Equal(t, "42", FormatValue(42))

	// Whole amounts lose the fractional part entirely.
	assert.Equal(t, "12", FormatValue(decimal.RequireFromString("12.00")))
	assert.Equal(t, "12.5", FormatValue(decimal.RequireFromString("12.50")))
}
