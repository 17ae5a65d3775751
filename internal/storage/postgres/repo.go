package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"dwh/internal/storage"
)

// maxParams is the Postgres wire-protocol limit on bind parameters per statement.
const maxParams = 65535

/*
Repo implements storage.Repository for Postgres.

It provides:
  - Full-refresh writes (DELETE, setval-based identity reset, batched INSERT)
  - Snapshot lookups keyed by storage.NormalizeKey
  - Transactions via pgx.Tx

The pool is capped at a single connection; the loader is strictly sequential.
*/
type Repo struct {
	pool *pgxpool.Pool
	w    writer
}

func init() {
	storage.Register("postgres", New)
}

// New creates a new Postgres-backed Repo. It does not dial; use Ping.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	pcfg.MaxConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	return &Repo{pool: pool, w: writer{db: pool}}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

func (r *Repo) Ping(ctx context.Context) error { return r.pool.Ping(ctx) }

// EnsureTables creates each table if missing, in the order given.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
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
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx, writer: writer{db: tx}}, nil
}

// SelectAllKeyValue returns a mapping from normalized key -> surrogate id for the whole table.
//
// The returned map key is storage.NormalizeKey(original_key_value) so callers can
// reliably match string/int/date key inputs.
func (r *Repo) SelectAllKeyValue(
	ctx context.Context,
	table string,
	keyColumn string,
	valueColumn string,
) (map[string]int64, error) {
	if table == "" || keyColumn == "" || valueColumn == "" {
		return nil, fmt.Errorf("SelectAllKeyValue: table, keyColumn, valueColumn are required")
	}

	q := fmt.Sprintf(`SELECT %s, %s FROM %s`, pgIdent(keyColumn), pgIdent(valueColumn), pgIdent(table))

	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("SelectAllKeyValue: query %s: %w", table, Classify(err))
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var k any
		var id int64
		if err := rows.Scan(&k, &id); err != nil {
			return nil, fmt.Errorf("SelectAllKeyValue: scan %s: %w", table, err)
		}
		out[storage.NormalizeKey(k)] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SelectAllKeyValue: rows %s: %w", table, Classify(err))
	}
	return out, nil
}

func (r *Repo) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+pgIdent(table)).Scan(&n)
	return n, Classify(err)
}

// SelectFactStats reads the sum as text so NUMERIC precision survives the scan.
func (r *Repo) SelectFactStats(ctx context.Context, q storage.FactStatsQuery) (storage.FactStats, error) {
	var (
		st  storage.FactStats
		sum string
	)
	query := fmt.Sprintf(
		`SELECT COUNT(*), COALESCE(SUM(%s), 0)::text, COUNT(DISTINCT %s), COUNT(DISTINCT %s) FROM %s`,
		pgIdent(q.AmountColumn), pgIdent(q.CustomerColumn), pgIdent(q.ProductColumn), pgIdent(q.Table),
	)
	if err := r.pool.QueryRow(ctx, query).Scan(&st.Rows, &sum, &st.DistinctCustomers, &st.DistinctProducts); err != nil {
		return st, Classify(err)
	}
	amount, err := decimal.NewFromString(sum)
	if err != nil {
		return st, fmt.Errorf("SelectFactStats: parse sum %q: %w", sum, err)
	}
	st.AmountSum = amount
	return st, nil
}

type pgTx struct {
	writer
	tx pgx.Tx
}

func (t *pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type writer struct {
	db dbtx
}

func (w writer) DeleteAll(ctx context.Context, table string) (int64, error) {
	cmd, err := w.db.Exec(ctx, "DELETE FROM "+pgIdent(table))
	if err != nil {
		return 0, Classify(err)
	}
	return cmd.RowsAffected(), nil
}

func (w writer) ResetIdentity(ctx context.Context, table, column string) error {
	_, err := w.db.Exec(ctx, resetIdentitySQL, pgIdent(table), column)
	return Classify(err)
}

// resetIdentitySQL restarts the column's sequence so nextval returns 1.
// pg_get_serial_sequence parses its first argument as an identifier (hence the
// quoting) and takes the column name literally.
const resetIdentitySQL = `SELECT setval(pg_get_serial_sequence($1, $2), 1, false)`

func (w writer) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	var total int64
	for _, chunk := range storage.ChunkRows(rows, len(columns), maxParams) {
		sql, args := buildInsertSQL(table, columns, chunk)
		cmd, err := w.db.Exec(ctx, sql, args...)
		if err != nil {
			return total, Classify(err)
		}
		total += cmd.RowsAffected()
	}
	return total, nil
}

// buildInsertSQL constructs a single INSERT statement and its args for Postgres.
//
// It is pure and deterministic, so placeholder numbering can be unit tested
// without a database.
//
// Constraints:
//   - rows must have the same length as columns for every row.
//   - columns must be non-empty.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
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
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}
	return b.String(), args
}

// pgIdent quotes an identifier, keeping a single schema qualifier apart:
// "public.Customers" => "public"."Customers".
func pgIdent(id string) string {
	schema, name := splitQualifiedName(id)
	q := `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	if schema == "" {
		return q
	}
	return `"` + strings.ReplaceAll(schema, `"`, `""`) + `".` + q
}

// splitQualifiedName splits a schema-qualified name into (schema, table).
//
// Examples:
//   - "public.countries" => ("public", "countries")
//   - "countries"        => ("", "countries")
func splitQualifiedName(name string) (schema string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

// Classify wraps undefined_table (42P01) and undefined_column (42703) with
// storage.ErrSchemaMismatch.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "42P01" || pgErr.Code == "42703") {
		return fmt.Errorf("%w: %w", storage.ErrSchemaMismatch, err)
	}
	return err
}
