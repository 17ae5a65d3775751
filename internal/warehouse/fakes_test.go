package warehouse

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dwh/internal/source"
	"dwh/internal/storage"
	_ "dwh/internal/storage/sqlite"
)

// fakeSource serves fixed extracts. A non-nil err fails every extract.
type fakeSource struct {
	customers [][]any
	products  [][]any
	dueDates  [][]any
	sales     [][]any
	err       error
	pingErr   error
	closed    int
}

func rowsOf(vals [][]any) []source.Row {
	out := make([]source.Row, len(vals))
	for i, v := range vals {
		out[i] = source.Row{V: v, Line: i + 1}
	}
	return out
}

func (f *fakeSource) Ping(context.Context) error { return f.pingErr }
func (f *fakeSource) Close() error               { f.closed++; return nil }

func (f *fakeSource) Customers(context.Context) ([]source.Row, error) {
	return rowsOf(f.customers), f.err
}

func (f *fakeSource) Products(context.Context) ([]source.Row, error) {
	return rowsOf(f.products), f.err
}

func (f *fakeSource) DueDates(context.Context) ([]source.Row, error) {
	return rowsOf(f.dueDates), f.err
}

func (f *fakeSource) SalesLines(context.Context) ([]source.Row, error) {
	return rowsOf(f.sales), f.err
}

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

// customer builds a source.CustomerColumns row.
func customer(id int64, first, middle, last, line1, line2, email, city, state, country any) []any {
	return []any{id, first, middle, last, line1, line2, email, city, state, country}
}

// sale builds a source.SalesColumns row.
func sale(qty int64, price, discount string, due time.Time, customerID, productID int64) []any {
	return []any{qty, price, discount, due, customerID, productID}
}

// scenarioSource is one customer, one product and one sales line.
func scenarioSource() *fakeSource {
	return &fakeSource{
		customers: [][]any{customer(1, "A", nil, "Smith", nil, nil, nil, nil, nil, nil)},
		products:  [][]any{{int64(10), "Widget", "Red", nil, "Sub", "Cat"}},
		dueDates:  [][]any{{day(2024, 1, 15)}},
		sales:     [][]any{sale(2, "5.00", "0", day(2024, 1, 15), 1, 10)},
	}
}

// testWarehouse is a file-backed SQLite warehouse with foreign keys enforced,
// plus a second handle for assertions.
type testWarehouse struct {
	DSN  string
	Repo storage.Repository
	DB   *sql.DB
}

func newTestWarehouse(t *testing.T, withSchema bool) *testWarehouse {
	t.Helper()
	ctx := context.Background()

	dsn := "file:" + filepath.Join(t.TempDir(), "dw.db") + "?_pragma=foreign_keys(1)"
	repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	if withSchema {
		require.NoError(t, repo.EnsureTables(ctx, StarSchema()))
	}

	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &testWarehouse{DSN: dsn, Repo: repo, DB: db}
}

// dump returns every row of table ordered by its first column, with values
// normalized to strings.
func (w *testWarehouse) dump(t *testing.T, table string) [][]string {
	t.Helper()

	rows, err := w.DB.Query(`SELECT * FROM "` + table + `" ORDER BY 1`)
	require.NoError(t, err)
	defer rows.Close()

	cols, err := rows.Columns()
	require.NoError(t, err)

	var out [][]string
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		require.NoError(t, rows.Scan(ptrs...))

		rec := make([]string, len(cols))
		for i, v := range vals {
			rec[i] = storage.NormalizeKey(v)
		}
		out = append(out, rec)
	}
	require.NoError(t, rows.Err())
	return out
}
