// Package sqlsource reads the source system through database/sql. It serves
// SQL Server (go-mssqldb) and SQLite (modernc.org/sqlite).
package sqlsource

import (
	"context"
	"database/sql"
	"fmt"

	"dwh/internal/source"
	"dwh/internal/storage/mssql"
	"dwh/internal/storage/sqlite"
)

func init() {
	source.Register("mssql", func(ctx context.Context, cfg source.Config) (source.Reader, error) {
		return open(ctx, "sqlserver", cfg.DSN, mssql.Classify)
	})
	source.Register("sqlite", func(ctx context.Context, cfg source.Config) (source.Reader, error) {
		return open(ctx, "sqlite", cfg.DSN, sqlite.Classify)
	})
}

// Reader implements source.Reader over a *sql.DB capped at one connection.
type Reader struct {
	db       *sql.DB
	queries  source.Queries
	classify func(error) error
}

func open(_ context.Context, driver, dsn string, classify func(error) error) (*Reader, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	return NewFromDB(db, classify), nil
}

// NewFromDB wraps an existing handle. It takes ownership: Close closes db.
// A nil classify leaves driver errors untouched.
func NewFromDB(db *sql.DB, classify func(error) error) *Reader {
	db.SetMaxOpenConns(1)
	if classify == nil {
		classify = func(err error) error { return err }
	}
	return &Reader{db: db, queries: source.DefaultQueries, classify: classify}
}

func (r *Reader) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *Reader) Close() error { return r.db.Close() }

func (r *Reader) Customers(ctx context.Context) ([]source.Row, error) {
	return r.query(ctx, "customers", len(source.CustomerColumns))
}

func (r *Reader) Products(ctx context.Context) ([]source.Row, error) {
	return r.query(ctx, "products", len(source.ProductColumns))
}

func (r *Reader) DueDates(ctx context.Context) ([]source.Row, error) {
	return r.query(ctx, "due_dates", len(source.DueDateColumns))
}

func (r *Reader) SalesLines(ctx context.Context) ([]source.Row, error) {
	return r.query(ctx, "sales_lines", len(source.SalesColumns))
}

func (r *Reader) query(ctx context.Context, extract string, width int) ([]source.Row, error) {
	rows, err := r.db.QueryContext(ctx, r.queries.Statement(extract))
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", extract, r.classify(err))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if len(cols) != width {
		return nil, fmt.Errorf("source %s: got %d columns, want %d", extract, len(cols), width)
	}

	var out []source.Row
	for rows.Next() {
		vals := make([]any, width)
		ptrs := make([]any, width)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("source %s: scan row %d: %w", extract, len(out)+1, err)
		}
		out = append(out, source.Row{V: vals, Line: len(out) + 1})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("source %s: %w", extract, r.classify(err))
	}
	return out, nil
}
