package warehouse

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"dwh/internal/storage"
)

// Lookups is a point-in-time snapshot of the dimension keys the fact loader
// resolves against. It is never mutated after BuildLookups returns.
type Lookups struct {
	products  map[string]struct{}
	dates     map[string]int64
	customers map[string]int64
}

// BuildLookups reads the product key set, FullDate -> DateKey and
// CustomerAlternateKey -> CustomerKey from the warehouse.
func BuildLookups(ctx context.Context, repo storage.Repository) (*Lookups, error) {
	products, err := repo.SelectAllKeyValue(ctx, TableProducts, "ProductKey", "ProductKey")
	if err != nil {
		return nil, fmt.Errorf("product lookup: %w", err)
	}
	dates, err := repo.SelectAllKeyValue(ctx, TableDates, "FullDate", "DateKey")
	if err != nil {
		return nil, fmt.Errorf("date lookup: %w", err)
	}
	customers, err := repo.SelectAllKeyValue(ctx, TableCustomers, "CustomerAlternateKey", "CustomerKey")
	if err != nil {
		return nil, fmt.Errorf("customer lookup: %w", err)
	}

	set := make(map[string]struct{}, len(products))
	for k := range products {
		set[k] = struct{}{}
	}
	return &Lookups{products: set, dates: dates, customers: customers}, nil
}

// newLookups builds a snapshot from in-memory keys.
func newLookups(products []int64, dates map[time.Time]int64, customers map[int64]int64) *Lookups {
	lk := &Lookups{
		products:  make(map[string]struct{}, len(products)),
		dates:     make(map[string]int64, len(dates)),
		customers: make(map[string]int64, len(customers)),
	}
	for _, p := range products {
		lk.products[intKey(p)] = struct{}{}
	}
	for d, k := range dates {
		lk.dates[storage.DateKey(dateOnly(d))] = k
	}
	for c, k := range customers {
		lk.customers[intKey(c)] = k
	}
	return lk
}

// HasProduct reports whether productID is a key of the product dimension.
func (lk *Lookups) HasProduct(productID int64) bool {
	_, ok := lk.products[intKey(productID)]
	return ok
}

// DateKey returns the surrogate key of the calendar date of d.
func (lk *Lookups) DateKey(d time.Time) (int64, bool) {
	k, ok := lk.dates[storage.DateKey(dateOnly(d))]
	return k, ok
}

// CustomerKey returns the surrogate key of a customer business key.
func (lk *Lookups) CustomerKey(customerID int64) (int64, bool) {
	k, ok := lk.customers[intKey(customerID)]
	return k, ok
}

// Sizes returns the number of products, dates and customers in the snapshot.
func (lk *Lookups) Sizes() (products, dates, customers int) {
	return len(lk.products), len(lk.dates), len(lk.customers)
}

func intKey(n int64) string { return strconv.FormatInt(n, 10) }
