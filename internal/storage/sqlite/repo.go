package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dwh/internal/storage"
)

// maxParams keeps multi-row inserts under the historical SQLITE_MAX_VARIABLE_NUMBER.
const maxParams = 999

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - SQLite has no DATE type. Dates are stored as "2006-01-02" text so that
//     lookups by NormalizeKey round-trip.
//   - Generated keys use INTEGER PRIMARY KEY AUTOINCREMENT; resetting identity
//     means clearing the table's sqlite_sequence entry.
//   - A single connection is used so a transaction sees every write, including
//     in-memory databases.
type Repo struct {
	db *sql.DB
	w  writer
}

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", withForeignKeys(cfg.DSN))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db, w: writer{q: db}}, nil
}

// withForeignKeys turns on REFERENCES enforcement for every connection unless
// the DSN already sets the pragma.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)"
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// EnsureTables creates each table if missing. Tables are created in the order
// given, so dimensions must precede the facts that reference them.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateTableSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
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
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, writer: writer{q: tx}}, nil
}

func (r *Repo) SelectAllKeyValue(ctx context.Context, table, keyColumn, valueColumn string) (map[string]int64, error) {
	q := fmt.Sprintf(`SELECT %s, %s FROM %s`, sqlIdent(keyColumn), sqlIdent(valueColumn), sqlIdent(table))
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, Classify(err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var k any
		var id sql.NullInt64
		if err := rows.Scan(&k, &id); err != nil {
			return nil, err
		}
		if !id.Valid {
			return nil, fmt.Errorf("sqlite: %s.%s is NULL", table, valueColumn)
		}
		out[storage.NormalizeKey(k)] = id.Int64
	}
	return out, rows.Err()
}

func (r *Repo) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+sqlIdent(table)).Scan(&n)
	return n, Classify(err)
}

func (r *Repo) SelectFactStats(ctx context.Context, q storage.FactStatsQuery) (storage.FactStats, error) {
	var st storage.FactStats
	query := fmt.Sprintf(
		`SELECT COUNT(*), COALESCE(SUM(%s), 0), COUNT(DISTINCT %s), COUNT(DISTINCT %s) FROM %s`,
		sqlIdent(q.AmountColumn), sqlIdent(q.CustomerColumn), sqlIdent(q.ProductColumn), sqlIdent(q.Table),
	)
	err := r.db.QueryRowContext(ctx, query).Scan(&st.Rows, &st.AmountSum, &st.DistinctCustomers, &st.DistinctProducts)
	return st, Classify(err)
}

type sqliteTx struct {
	writer
	tx *sql.Tx
}

func (t *sqliteTx) Commit(context.Context) error   { return t.tx.Commit() }
func (t *sqliteTx) Rollback(context.Context) error { return t.tx.Rollback() }

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type writer struct {
	q querier
}

func (w writer) DeleteAll(ctx context.Context, table string) (int64, error) {
	res, err := w.q.ExecContext(ctx, "DELETE FROM "+sqlIdent(table))
	if err != nil {
		return 0, Classify(err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ResetIdentity clears the AUTOINCREMENT counter. sqlite_sequence only exists
// once some table in the database declares AUTOINCREMENT.
func (w writer) ResetIdentity(ctx context.Context, table, _ string) error {
	var n int
	if err := w.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'sqlite_sequence'`,
	).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	_, err := w.q.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name = ?`, table)
	return err
}

func (w writer) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	var total int64
	for _, chunk := range storage.ChunkRows(rows, len(columns), maxParams) {
		query, args := buildInsertSQL(table, columns, chunk)
		res, err := w.q.ExecContext(ctx, query, args...)
		if err != nil {
			return total, Classify(err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	colList := make([]string, 0, len(columns))
	for _, c := range columns {
		colList = append(colList, sqlIdent(c))
	}
	placeholders := "(" + strings.TrimRight(strings.Repeat("?,", len(columns)), ",") + ")"

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	b.WriteString(strings.Join(colList, ", "))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders)
		for _, v := range row {
			args = append(args, bindValue(v))
		}
	}
	return b.String(), args
}

// bindValue stores times as text in the same form NormalizeKey produces.
func bindValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return storage.DateKey(t)
	}
	return v
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// columnType maps logical column types to SQLite type names; only the
// resulting affinity matters to SQLite.
func columnType(logical string) string {
	switch strings.ToLower(strings.TrimSpace(logical)) {
	case "int", "integer", "bigint", "smallint":
		return "INTEGER"
	case "text", "string":
		return "TEXT"
	case "date":
		return "DATE"
	case "money", "decimal", "numeric":
		return "NUMERIC"
	default:
		return logical
	}
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}

	var parts []string
	if t.PrimaryKey != nil {
		if t.PrimaryKey.Generated() {
			// "INTEGER PRIMARY KEY" becomes the rowid; AUTOINCREMENT tracks it in sqlite_sequence.
			parts = append(parts, fmt.Sprintf(`%s INTEGER PRIMARY KEY AUTOINCREMENT`, sqlIdent(t.PrimaryKey.Name)))
		} else {
			parts = append(parts, fmt.Sprintf(`%s %s PRIMARY KEY`, sqlIdent(t.PrimaryKey.Name), columnType(t.PrimaryKey.Type)))
		}
	}

	for _, c := range t.Columns {
		col := fmt.Sprintf("%s %s", sqlIdent(c.Name), columnType(c.Type))
		if c.Nullable != nil && !*c.Nullable {
			col += " NOT NULL"
		}
		// Enforced through the pragma New adds to the DSN.
		if c.References != "" {
			refTable, refCol, err := storage.ParseReference(c.References)
			if err != nil {
				return "", fmt.Errorf("%s.%s: %w", t.Name, c.Name, err)
			}
			col += fmt.Sprintf(" REFERENCES %s(%s)", sqlIdent(refTable), sqlIdent(refCol))
		}
		parts = append(parts, col)
	}

	for _, con := range t.Constraints {
		if con.Kind != "unique" {
			return "", fmt.Errorf("%s unsupported constraint kind: %s", t.Name, con.Kind)
		}
		var cols []string
		for _, c := range con.Columns {
			cols = append(cols, sqlIdent(c))
		}
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", strings.Join(cols, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", sqlIdent(t.Name), strings.Join(parts, ",\n  ")), nil
}

// Classify wraps missing-object errors with storage.ErrSchemaMismatch.
func Classify(err error) error {
	if err == nil || errors.Is(err, storage.ErrSchemaMismatch) {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "has no column named") {
		return fmt.Errorf("%w: %w", storage.ErrSchemaMismatch, err)
	}
	return err
}
