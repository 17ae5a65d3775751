package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mssqldb "github.com/microsoft/go-mssqldb"
	"github.com/shopspring/decimal"

	"dwh/internal/storage"
)

// SQL Server has a hard limit of 2100 parameters per request. We stay below that.
const maxParams = 2000

// Repo implements storage.Repository for Microsoft SQL Server.
//
// This implementation supports:
//   - Full-refresh writes: DELETE, DBCC CHECKIDENT reseed, chunked INSERT.
//   - Snapshot lookups keyed by storage.NormalizeKey.
//   - Transactions over a single database/sql connection.
//
// Importing this package registers the "sqlserver" database/sql driver.
type Repo struct {
	db *sql.DB
	w  writer
}

func init() {
	storage.Register("mssql", New)
}

// New constructs a Repo using database/sql and the "sqlserver" driver. It does
// not dial; use Ping.
func New(_ context.Context, cfg storage.Config) (storage.Repository, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}
	raw.SetMaxOpenConns(1)
	return &Repo{db: raw, w: writer{db: raw}}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// EnsureTables creates each table if missing, in the order given.
//
// This method is idempotent and safe to run on every invocation.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("mssql: create table %s: %w", t.Name, err)
		}
	}
	return nil
}

func (r *Repo) DeleteAll(ctx context.Context, table string) (int64, error) {
	return r.w.DeleteAll(ctx, table)
}

func (r *Repo) ResetIdentity(ctx context.Context, table, column string) error {
	return r.w.ResetIdentity(ctx, table, column)
}

func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	return r.w.InsertRows(ctx, table, columns, rows)
}

func (r *Repo) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx, writer: writer{db: tx}}, nil
}

// SelectAllKeyValue returns a mapping from normalized key -> surrogate id for the entire table.
func (r *Repo) SelectAllKeyValue(
	ctx context.Context,
	table string,
	keyColumn string,
	valueColumn string,
) (map[string]int64, error) {
	if table == "" || keyColumn == "" || valueColumn == "" {
		return nil, fmt.Errorf("SelectAllKeyValue: table, keyColumn, valueColumn required")
	}

	q := fmt.Sprintf(
		"SELECT %s, %s FROM %s",
		mssqlIdent(keyColumn),
		mssqlIdent(valueColumn),
		mssqlTableIdent(table),
	)

	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, Classify(err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var k any
		var id int64
		if err := rows.Scan(&k, &id); err != nil {
			return nil, err
		}
		out[storage.NormalizeKey(k)] = id
	}
	if err := rows.Err(); err != nil {
		return nil, Classify(err)
	}
	return out, nil
}

func (r *Repo) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT_BIG(*) FROM "+mssqlTableIdent(table)).Scan(&n)
	return n, Classify(err)
}

// SelectFactStats converts the DECIMAL sum to text so no precision is lost in the driver.
func (r *Repo) SelectFactStats(ctx context.Context, q storage.FactStatsQuery) (storage.FactStats, error) {
	var (
		st  storage.FactStats
		sum string
	)
	query := fmt.Sprintf(
		"SELECT COUNT_BIG(*), CONVERT(NVARCHAR(64), COALESCE(SUM(%s), 0)), COUNT_BIG(DISTINCT %s), COUNT_BIG(DISTINCT %s) FROM %s",
		mssqlIdent(q.AmountColumn), mssqlIdent(q.CustomerColumn), mssqlIdent(q.ProductColumn), mssqlTableIdent(q.Table),
	)
	if err := r.db.QueryRowContext(ctx, query).Scan(&st.Rows, &sum, &st.DistinctCustomers, &st.DistinctProducts); err != nil {
		return st, Classify(err)
	}
	amount, err := decimal.NewFromString(sum)
	if err != nil {
		return st, fmt.Errorf("mssql: parse sum %q: %w", sum, err)
	}
	st.AmountSum = amount
	return st, nil
}

// ---- database/sql seam types ----

// execer is the narrow slice of *sql.DB / *sql.Tx the writer needs; tests fake it.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// sqlTx wraps *sql.Tx to implement storage.Tx.
type sqlTx struct {
	writer
	tx *sql.Tx
}

// Commit commits the transaction.
func (s *sqlTx) Commit(context.Context) error { return s.tx.Commit() }

// Rollback rolls back the transaction.
func (s *sqlTx) Rollback(context.Context) error { return s.tx.Rollback() }

type writer struct {
	db execer
}

func (w writer) DeleteAll(ctx context.Context, table string) (int64, error) {
	res, err := w.db.ExecContext(ctx, "DELETE FROM "+mssqlTableIdent(table))
	if err != nil {
		return 0, Classify(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (w writer) ResetIdentity(ctx context.Context, table, _ string) error {
	_, err := w.db.ExecContext(ctx, buildReseedSQL(table))
	return Classify(err)
}

func (w writer) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	var total int64
	for _, chunk := range storage.ChunkRows(rows, len(columns), maxParams) {
		q, args := buildBulkInsertSQL(table, columns, chunk)
		res, err := w.db.ExecContext(ctx, q, args...)
		if err != nil {
			return total, Classify(err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// buildReseedSQL reseeds the identity so the next insert receives 1.
//
// RESEED 0 on a table that never held a row would make the next value 0, so the
// reseed only runs once the identity has issued a value.
func buildReseedSQL(table string) string {
	lit := strings.ReplaceAll(mssqlTableIdent(table), "'", "''")
	return fmt.Sprintf(
		"IF EXISTS (SELECT 1 FROM sys.identity_columns WHERE object_id = OBJECT_ID(N'%s') AND last_value IS NOT NULL) DBCC CHECKIDENT (N'%s', RESEED, 0);",
		lit, lit,
	)
}

// buildBulkInsertSQL builds a single INSERT ... VALUES statement for all rows.
func buildBulkInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(mssqlTableIdent(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "@p%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	return b.String(), args
}

// mssqlIdent returns a bracket-quoted identifier, escaping ']' as ']]'.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// mssqlTableIdent returns a bracket-quoted identifier for schema-qualified names.
//
// Example:
//
//	"dbo.Customers" -> [dbo].[Customers]
func mssqlTableIdent(name string) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = mssqlIdent(strings.TrimSpace(parts[i]))
	}
	return strings.Join(parts, ".")
}

// Classify wraps "Invalid object name" (208) and "Invalid column name" (207)
// with storage.ErrSchemaMismatch.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var msErr mssqldb.Error
	if errors.As(err, &msErr) && (msErr.Number == 207 || msErr.Number == 208) {
		return fmt.Errorf("%w: %w", storage.ErrSchemaMismatch, err)
	}
	return err
}
