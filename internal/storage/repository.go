package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrSchemaMismatch marks driver errors caused by a missing table or column in
// the target (or source) schema. Backends wrap such errors so callers can use
// errors.Is without knowing the driver.
var ErrSchemaMismatch = errors.New("schema mismatch")

// Config is the minimal configuration needed to open a warehouse repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Writer holds the mutating operations used by the dimension and fact loaders.
// Both Repository (autocommit) and Tx implement it.
type Writer interface {
	// DeleteAll removes every row of table and returns the number of rows removed.
	DeleteAll(ctx context.Context, table string) (int64, error)

	// ResetIdentity restarts the generated-key sequence of table.column so the
	// next inserted row receives key 1.
	ResetIdentity(ctx context.Context, table string, column string) error

	// InsertRows bulk-inserts rows aligned with columns. Backends split the
	// statement as needed to stay under driver parameter limits.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

// Tx is a Writer bound to a single database transaction.
type Tx interface {
	Writer
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Repository is the backend-agnostic warehouse interface.
//
// IMPORTANT: This interface is intentionally minimal and focused on the
// operations the loaders need. Each backend implements these semantics in its
// own idiomatic way (Postgres setval, SQL Server DBCC CHECKIDENT, SQLite
// sqlite_sequence).
type Repository interface {
	Writer

	// Close releases the connection. Callers should treat Close as "call once".
	Close()

	// Ping verifies the warehouse accepts connections.
	Ping(ctx context.Context) error

	// EnsureTables creates tables and constraints as needed (create-if-missing).
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// Begin starts a transaction. Callers must Commit or Rollback.
	Begin(ctx context.Context) (Tx, error)

	// SelectAllKeyValue returns NormalizeKey(key) -> value for the whole table.
	SelectAllKeyValue(ctx context.Context, table string, keyColumn string, valueColumn string) (map[string]int64, error)

	// CountRows returns SELECT COUNT(*) for table.
	CountRows(ctx context.Context, table string) (int64, error)

	// SelectFactStats aggregates a loaded fact table.
	SelectFactStats(ctx context.Context, q FactStatsQuery) (FactStats, error)
}

// FactStatsQuery names the columns aggregated by SelectFactStats.
type FactStatsQuery struct {
	Table          string
	AmountColumn   string
	CustomerColumn string
	ProductColumn  string
}

// FactStats is the aggregate summary of a fact table.
type FactStats struct {
	Rows              int64
	AmountSum         decimal.Decimal
	DistinctCustomers int64
	DistinctProducts  int64
}

// ---- factories ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a warehouse backend under a kind (e.g. "postgres", "sqlite").
//
// Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %s)", cfg.Kind, strings.Join(Kinds(), ", "))
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ChunkRows splits rows so that no chunk binds more than maxParams parameters.
// At least one row is always placed in a chunk.
func ChunkRows(rows [][]any, columns int, maxParams int) [][][]any {
	if len(rows) == 0 {
		return nil
	}
	per := 1
	if columns > 0 && maxParams > columns {
		per = maxParams / columns
	}

	out := make([][][]any, 0, (len(rows)+per-1)/per)
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}
