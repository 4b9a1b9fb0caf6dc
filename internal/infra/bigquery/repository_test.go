package bigquery

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/bank-normalizer/internal/domain"
	"github.com/dvloznov/bank-normalizer/internal/pipeline"
	"github.com/dvloznov/bank-normalizer/internal/schema"
)

type fakeInserter struct {
	batches [][]*bigquery.StructSaver
	err     error
}

func (f *fakeInserter) Put(ctx context.Context, src interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, src.([]*bigquery.StructSaver))
	return nil
}

func newTestRepository(ins rowInserter, batch int) *Repository {
	return &Repository{
		inserter:  ins,
		batchSize: batch,
		now:       func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func canonical(amount any) schema.CanonicalRecord {
	return schema.CanonicalRecord{
		{Name: "date", Value: "05-01-2020"},
		{Name: "transaction", Value: "remove"},
		{Name: "amount", Value: amount},
		{Name: "from", Value: "A"},
		{Name: "to", Value: "B"},
	}
}

func TestNewTransactionRow(t *testing.T) {
	tx := domain.Transaction{
		Date:   time.Date(2020, 1, 5, 0, 0, 0, 0, time.UTC),
		Type:   "remove",
		Amount: decimal.RequireFromString("12.50"),
		From:   "A",
		To:     "B",
	}
	row := NewTransactionRow("load-1", "bank3.csv", 4, tx, time.Now())

	assert.NotEmpty(t, row.TransactionID)
	assert.Equal(t, civil.Date{Year: 2020, Month: time.January, Day: 5}, row.TransactionDate)
	assert.Equal(t, "25/2", row.Amount.String())
	assert.Equal(t, "-25/2", row.SignedAmount.String())
	assert.Equal(t, "bank3.csv:4", row.InsertID())
	assert.Equal(t, "bank3.csv:4", row.Saver().InsertID)
}

func TestTransactionRow_MarshalJSON(t *testing.T) {
	tx := domain.Transaction{Type: "remove", Amount: decimal.RequireFromString("7.25")}
	row := NewTransactionRow("l", "f.csv", 2, tx, time.Now())

	b, err := json.Marshal(row)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "7.25", got["amount"])
	assert.Equal(t, "-7.25", got["signed_amount"])
	assert.Equal(t, "f.csv", got["source_file"])
}

func TestTransactionSchema(t *testing.T) {
	s, err := TransactionSchema()
	require.NoError(t, err)

	types := map[string]bigquery.FieldType{}
	for _, f := range s {
		types[f.Name] = f.Type
	}
	assert.Equal(t, bigquery.DateFieldType, types["transaction_date"])
	assert.Equal(t, bigquery.NumericFieldType, types["amount"])
	assert.Equal(t, bigquery.IntegerFieldType, types["line_no"])
	assert.Equal(t, bigquery.TimestampFieldType, types["loaded_ts"])
	assert.Equal(t, bigquery.StringFieldType, types["from_id"])
}

func TestRepository_BatchesOnClose(t *testing.T) {
	ctx := context.Background()
	ins := &fakeInserter{}
	repo := newTestRepository(ins, 2)

	w, err := repo.Create(ctx, "a.csv", schema.CanonicalColumns)
	require.NoError(t, err)
	for line := 2; line <= 6; line++ {
		require.NoError(t, w.Write(ctx, line, canonical("1")))
	}
	assert.Empty(t, ins.batches)

	require.NoError(t, w.Close())
	require.Len(t, ins.batches, 3)
	assert.Len(t, ins.batches[0], 2)
	assert.Len(t, ins.batches[2], 1)

	first := ins.batches[0][0].Struct.(*TransactionRow)
	last := ins.batches[2][0].Struct.(*TransactionRow)
	assert.Equal(t, first.LoadID, last.LoadID)
	assert.EqualValues(t, 6, last.LineNo)
}

func TestRepository_AbortDropsRows(t *testing.T) {
	ctx := context.Background()
	ins := &fakeInserter{}
	repo := newTestRepository(ins, 10)

	w, err := repo.Create(ctx, "a.csv", schema.CanonicalColumns)
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, 2, canonical("1")))
	require.NoError(t, w.(pipeline.Aborter).Abort())
	require.NoError(t, w.Close())

	assert.Empty(t, ins.batches)
}

func TestRepository_InsertError(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(&fakeInserter{err: errors.New("quota exceeded")}, 10)

	w, err := repo.Create(ctx, "a.csv", schema.CanonicalColumns)
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, 2, canonical(decimal.NewFromInt(3))))
	assert.ErrorContains(t, w.Close(), "quota exceeded")
}

func TestRepository_WriteRejectsBadRecord(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(&fakeInserter{}, 10)

	w, err := repo.Create(ctx, "a.csv", schema.CanonicalColumns)
	require.NoError(t, err)
	assert.Error(t, w.Write(ctx, 2, canonical("abc")))
}
