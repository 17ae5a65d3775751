// Package pgsource reads the source system from Postgres with a single pgx connection.
package pgsource

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"dwh/internal/source"
	"dwh/internal/storage/postgres"
)

func init() {
	source.Register("postgres", Open)
}

// Reader implements source.Reader over one pgx.Conn.
type Reader struct {
	conn    *pgx.Conn
	queries source.Queries
}

// Open dials the source. The connection is owned by the Reader until Close.
func Open(ctx context.Context, cfg source.Config) (source.Reader, error) {
	conn, err := pgx.Connect(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Reader{conn: conn, queries: source.DefaultQueries}, nil
}

func (r *Reader) Ping(ctx context.Context) error { return r.conn.Ping(ctx) }

func (r *Reader) Close() error { return r.conn.Close(context.Background()) }

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

// query runs one extract. rows.Values decodes into native Go values
// (int16/int32, string, time.Time, pgtype.Numeric) which the warehouse coerces.
func (r *Reader) query(ctx context.Context, extract string, width int) ([]source.Row, error) {
	rows, err := r.conn.Query(ctx, r.queries.Statement(extract))
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", extract, postgres.Classify(err))
	}
	defer rows.Close()

	var out []source.Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("source %s: decode row %d: %w", extract, len(out)+1, err)
		}
		if len(vals) != width {
			return nil, fmt.Errorf("source %s: got %d columns, want %d", extract, len(vals), width)
		}
		out = append(out, source.Row{V: vals, Line: len(out) + 1})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("source %s: %w", extract, postgres.Classify(err))
	}
	return out, nil
}
