// Package bigquery streams canonical transactions into a BigQuery table.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"

	"github.com/dvloznov/bank-normalizer/internal/domain"
	"github.com/dvloznov/bank-normalizer/internal/pipeline"
	"github.com/dvloznov/bank-normalizer/internal/schema"
)

// DefaultBatchSize is the number of rows sent per streaming insert call.
const DefaultBatchSize = 500

// rowInserter is the part of *bigquery.Inserter the repository uses.
type rowInserter interface {
	Put(ctx context.Context, src interface{}) error
}

// Repository implements pipeline.Destination on a BigQuery table.
// It holds a shared client; rows of a file are buffered and streamed on Close.
type Repository struct {
	client    *bigquery.Client
	table     *bigquery.Table
	inserter  rowInserter
	batchSize int
	now       func() time.Time
}

// NewRepository creates a repository for projectID.datasetID.tableID.
func NewRepository(ctx context.Context, projectID, datasetID, tableID string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	table := client.DatasetInProject(projectID, datasetID).Table(tableID)
	return &Repository{
		client:    client,
		table:     table,
		inserter:  table.Inserter(),
		batchSize: DefaultBatchSize,
		now:       time.Now,
	}, nil
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// EnsureTable creates the table with the TransactionRow schema, partitioned
// by transaction_date, unless it already exists.
func (r *Repository) EnsureTable(ctx context.Context) error {
	s, err := TransactionSchema()
	if err != nil {
		return err
	}
	err = r.table.Create(ctx, &bigquery.TableMetadata{
		Schema:           s,
		TimePartitioning: &bigquery.TimePartitioning{Field: "transaction_date"},
	})
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
		return nil
	}
	if err != nil {
		return fmt.Errorf("EnsureTable: %w", err)
	}
	return nil
}

// Create implements pipeline.Destination.
func (r *Repository) Create(ctx context.Context, name string, columns []string) (pipeline.RecordWriter, error) {
	return &fileLoad{
		repo:     r,
		ctx:      ctx,
		loadID:   uuid.NewString(),
		file:     name,
		loadedAt: r.now().UTC(),
	}, nil
}

type fileLoad struct {
	repo     *Repository
	ctx      context.Context
	loadID   string
	file     string
	loadedAt time.Time
	rows     []*bigquery.StructSaver
}

func (l *fileLoad) Write(ctx context.Context, line int, rec schema.CanonicalRecord) error {
	t, err := domain.FromCanonical(rec)
	if err != nil {
		return err
	}
	row := NewTransactionRow(l.loadID, l.file, line, t, l.loadedAt)
	l.rows = append(l.rows, row.Saver())
	return nil
}

// Close streams buffered rows in batches.
func (l *fileLoad) Close() error {
	rows := l.rows
	l.rows = nil
	for start := 0; start < len(rows); start += l.repo.batchSize {
		end := start + l.repo.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := l.repo.inserter.Put(l.ctx, rows[start:end]); err != nil {
			return fmt.Errorf("InsertTransactions: %s rows %d-%d: %w", l.file, start, end, err)
		}
	}
	return nil
}

func (l *fileLoad) Abort() error {
	l.rows = nil
	return nil
}

var _ pipeline.Destination = (*Repository)(nil)
