// Package sqlite loads canonical transactions into a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/dvloznov/bank-normalizer/internal/domain"
	"github.com/dvloznov/bank-normalizer/internal/pipeline"
	"github.com/dvloznov/bank-normalizer/internal/schema"
)

const dateLayout = "2006-01-02"

const createTableSQL = `
CREATE TABLE IF NOT EXISTS transactions (
	id          TEXT PRIMARY KEY,
	source_file TEXT NOT NULL,
	line_no     INTEGER NOT NULL,
	date        TEXT NOT NULL,
	transaction_type TEXT NOT NULL,
	amount      TEXT NOT NULL,
	from_id     TEXT NOT NULL,
	to_id       TEXT NOT NULL,
	loaded_at   TEXT NOT NULL
)`

const createIndexSQL = `CREATE INDEX IF NOT EXISTS transactions_source_file ON transactions (source_file)`

const insertSQL = `INSERT INTO transactions
	(id, source_file, line_no, date, transaction_type, amount, from_id, to_id, loaded_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Store implements pipeline.Destination on a SQLite database.
// Each input file is loaded in one SQL transaction that first removes rows
// previously loaded from the same file, so reloading a file replaces it.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open connects to dsn and creates the schema if needed.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// One writer at a time; concurrent file loads queue on the connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	for _, q := range []string{createTableSQL, createIndexSQL} {
		if _, err := db.ExecContext(ctx, q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: create schema: %w", err)
		}
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Create implements pipeline.Destination.
func (s *Store) Create(ctx context.Context, name string, columns []string) (pipeline.RecordWriter, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE source_file = ?`, name); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("sqlite: clear %s: %w", name, err)
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	return &fileLoad{tx: tx, stmt: stmt, file: name, loadedAt: s.now().UTC()}, nil
}

type fileLoad struct {
	tx       *sql.Tx
	stmt     *sql.Stmt
	file     string
	loadedAt time.Time
}

func (l *fileLoad) Write(ctx context.Context, line int, rec schema.CanonicalRecord) error {
	t, err := domain.FromCanonical(rec)
	if err != nil {
		return err
	}
	_, err = l.stmt.ExecContext(ctx,
		uuid.New().String(),
		l.file,
		line,
		t.Date.Format(dateLayout),
		t.Type,
		t.Amount.String(),
		t.From,
		t.To,
		l.loadedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert line %d: %w", line, err)
	}
	return nil
}

func (l *fileLoad) Close() error {
	_ = l.stmt.Close()
	if err := l.tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit %s: %w", l.file, err)
	}
	return nil
}

func (l *fileLoad) Abort() error {
	_ = l.stmt.Close()
	return l.tx.Rollback()
}

// Row is a loaded transaction.
type Row struct {
	ID         string
	SourceFile string
	Line       int
	LoadedAt   time.Time
	domain.Transaction
}

// ListBySourceFile returns the rows loaded from file, in line order.
func (s *Store) ListBySourceFile(ctx context.Context, file string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_file, line_no, date, transaction_type, amount, from_id, to_id, loaded_at
		FROM transactions WHERE source_file = ? ORDER BY line_no`, file)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r                Row
			date, amt, ldate string
		)
		if err := rows.Scan(&r.ID, &r.SourceFile, &r.Line, &date, &r.Type, &amt, &r.From, &r.To, &ldate); err != nil {
			return nil, err
		}
		if r.Date, err = time.Parse(dateLayout, date); err != nil {
			return nil, fmt.Errorf("sqlite: row %s: date: %w", r.ID, err)
		}
		if r.Amount, err = decimal.NewFromString(amt); err != nil {
			return nil, fmt.Errorf("sqlite: row %s: amount: %w", r.ID, err)
		}
		if r.LoadedAt, err = time.Parse(time.RFC3339Nano, ldate); err != nil {
			return nil, fmt.Errorf("sqlite: row %s: loaded_at: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ pipeline.Destination = (*Store)(nil)
