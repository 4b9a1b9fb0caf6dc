package bigquery

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-normalizer/internal/domain"
)

// amountScale is the number of fractional digits BigQuery NUMERIC keeps.
const amountScale = 9

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id" json:"transaction_id"` // REQUIRED
	LoadID        string `bigquery:"load_id" json:"load_id"`               // REQUIRED, one per loaded file

	SourceFile string `bigquery:"source_file" json:"source_file"` // REQUIRED
	LineNo     int64  `bigquery:"line_no" json:"line_no"`         // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date" json:"transaction_date"` // REQUIRED
	TransactionType string     `bigquery:"transaction_type" json:"transaction_type"` // REQUIRED: add | remove

	Amount       *big.Rat `bigquery:"amount" json:"amount"`               // NUMERIC
	SignedAmount *big.Rat `bigquery:"signed_amount" json:"signed_amount"` // NUMERIC, negative for remove

	FromID string `bigquery:"from_id" json:"from_id"` // REQUIRED
	ToID   string `bigquery:"to_id" json:"to_id"`     // REQUIRED

	LoadedTS time.Time `bigquery:"loaded_ts" json:"loaded_ts"` // REQUIRED
}

// NewTransactionRow maps a typed transaction read from line of file.
func NewTransactionRow(loadID, file string, line int, t domain.Transaction, loadedAt time.Time) *TransactionRow {
	return &TransactionRow{
		TransactionID:   uuid.NewString(),
		LoadID:          loadID,
		SourceFile:      file,
		LineNo:          int64(line),
		TransactionDate: civil.DateOf(t.Date),
		TransactionType: t.Type,
		Amount:          t.Amount.Rat(),
		SignedAmount:    t.Signed().Rat(),
		FromID:          t.From,
		ToID:            t.To,
		LoadedTS:        loadedAt,
	}
}

// InsertID identifies the row for best-effort deduplication of streaming
// retries: the same line of the same file maps to the same ID.
func (t *TransactionRow) InsertID() string {
	return fmt.Sprintf("%s:%d", t.SourceFile, t.LineNo)
}

// Saver wraps the row for the table inserter.
func (t *TransactionRow) Saver() *bigquery.StructSaver {
	return &bigquery.StructSaver{Struct: t, InsertID: t.InsertID()}
}

// MarshalJSON renders NUMERIC columns as decimal strings.
func (t TransactionRow) MarshalJSON() ([]byte, error) {
	type Alias TransactionRow
	return json.Marshal(&struct {
		Amount       string `json:"amount"`
		SignedAmount string `json:"signed_amount"`
		*Alias
	}{
		Amount:       ratString(t.Amount),
		SignedAmount: ratString(t.SignedAmount),
		Alias:        (*Alias)(&t),
	})
}

func ratString(r *big.Rat) string {
	if r == nil {
		return "0"
	}
	return decimal.NewFromBigRat(r, amountScale).String()
}

// TransactionSchema is the table schema inferred from TransactionRow.
func TransactionSchema() (bigquery.Schema, error) {
	s, err := bigquery.InferSchema(TransactionRow{})
	if err != nil {
		return nil, fmt.Errorf("TransactionSchema: %w", err)
	}
	return s, nil
}
