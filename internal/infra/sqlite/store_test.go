package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/bank-normalizer/internal/pipeline"
	"github.com/dvloznov/bank-normalizer/internal/schema"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "file:"+filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func canonical(date, typ string, amount any, from, to string) schema.CanonicalRecord {
	return schema.CanonicalRecord{
		{Name: schema.ColumnDate, Value: date},
		{Name: schema.ColumnTransaction, Value: typ},
		{Name: schema.ColumnAmount, Value: amount},
		{Name: schema.ColumnFrom, Value: from},
		{Name: schema.ColumnTo, Value: to},
	}
}

func TestStore_LoadAndList(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	s.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	w, err := s.Create(ctx, "bank3.csv", schema.CanonicalColumns)
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, 2, canonical("05-01-2020", "remove", decimal.RequireFromString("12.50"), "A", "B")))
	require.NoError(t, w.Write(ctx, 3, canonical("06-01-2020", "add", "7.25", "B", "A")))
	require.NoError(t, w.Close())

	rows, err := s.ListBySourceFile(ctx, "bank3.csv")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, "2020-01-05", rows[0].Date.Format(dateLayout))
	assert.Equal(t, "remove", rows[0].Type)
	assert.True(t, decimal.RequireFromString("12.5").Equal(rows[0].Amount))
	assert.Equal(t, "A", rows[0].From)
	assert.NotEmpty(t, rows[0].ID)
	assert.True(t, s.now().Equal(rows[0].LoadedAt))

	assert.Equal(t, "7.25", rows[1].Amount.String())
}

func TestStore_AbortRollsBack(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	w, err := s.Create(ctx, "a.csv", schema.CanonicalColumns)
	require.NoError(t, err)
	require.NoError(t, w.Write(ctx, 2, canonical("05-01-2020", "add", "1", "A", "B")))
	require.NoError(t, w.(pipeline.Aborter).Abort())

	rows, err := s.ListBySourceFile(ctx, "a.csv")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_ReloadReplacesFile(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for i := 0; i < 2; i++ {
		w, err := s.Create(ctx, "a.csv", schema.CanonicalColumns)
		require.NoError(t, err)
		require.NoError(t, w.Write(ctx, 2, canonical("05-01-2020", "add", "1", "A", "B")))
		require.NoError(t, w.Close())
	}

	rows, err := s.ListBySourceFile(ctx, "a.csv")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestStore_WriteRejectsNonCanonicalRecord(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	w, err := s.Create(ctx, "a.csv", schema.CanonicalColumns)
	require.NoError(t, err)
	defer w.(pipeline.Aborter).Abort()

	err = w.Write(ctx, 2, canonical("2020-01-05", "add", "1", "A", "B"))
	assert.Error(t, err)
}

func TestStore_AsExportDestination(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	reg, err := schema.Default()
	require.NoError(t, err)

	e := &pipeline.Exporter{Registry: reg, Logger: zerolog.Nop()}
	in := "timestamp,type,amount,from,to\nJan 05 2020,add,100,A,B\nJan 06 2020,gift,1,A,B\n"

	rep, err := e.Normalize(ctx, "bank1.csv", strings.NewReader(in), s)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Written)

	rows, err := s.ListBySourceFile(ctx, "bank1.csv")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "100", rows[0].Amount.String())
}
