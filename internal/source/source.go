// Package source reads the OLTP system the warehouse is loaded from.
//
// Every reader returns positional rows aligned with the column lists below,
// ordered by business key so downstream key assignment is reproducible.
package source

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Row is a positional source row.
type Row struct {
	V    []any
	Line int // 1-based record number within its result set
}

// Column orders of the four extracts.
var (
	CustomerColumns = []string{
		"customer_id", "first_name", "middle_name", "last_name",
		"address_line1", "address_line2", "email_address",
		"city", "state_province", "country_region",
	}
	ProductColumns = []string{
		"product_id", "name", "color", "size", "subcategory_name", "category_name",
	}
	DueDateColumns = []string{"due_date"}
	SalesColumns   = []string{
		"order_qty", "unit_price", "unit_price_discount", "due_date", "customer_id", "product_id",
	}
)

// Reader is a read-only view of the source system.
type Reader interface {
	Ping(ctx context.Context) error
	Customers(ctx context.Context) ([]Row, error)
	Products(ctx context.Context) ([]Row, error)
	// DueDates returns the distinct due dates of all sales lines, ascending.
	DueDates(ctx context.Context) ([]Row, error)
	SalesLines(ctx context.Context) ([]Row, error)
	Close() error
}

// Config selects and addresses a source.
//
// Edge cases:
//   - DSN is used by database kinds (postgres, mssql, sqlite).
//   - Path is used by the csv kind and names a directory.
//   - Params carries csv parsing options in URL query form.
type Config struct {
	Kind   string
	DSN    string
	Path   string
	Params string
}

type factory func(ctx context.Context, cfg Config) (Reader, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a source reader under a kind. Call it from init().
// It panics on empty kind, nil factory or duplicate registration.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("source: Register called with empty kind")
	}
	if f == nil {
		panic("source: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("source: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// Open constructs a Reader using the registered factory for cfg.Kind.
func Open(ctx context.Context, cfg Config) (Reader, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("source: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported source.kind=%s (registered: %s)", cfg.Kind, strings.Join(Kinds(), ", "))
	}
	return f(ctx, cfg)
}

// Kinds returns the registered source kinds in sorted order.
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
