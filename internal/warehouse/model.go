package warehouse

import (
	"time"

	"github.com/shopspring/decimal"
)

// Customer is a Customers dimension row before key assignment.
type Customer struct {
	AlternateKey  int64
	FullName      string
	Address       *string
	EmailAddress  *string
	City          *string
	StateProvince *string
	CountryRegion *string
}

// Product is a Products dimension row. Key is the source product id.
type Product struct {
	Key             int64
	Name            *string
	Color           *string
	Size            *string
	SubcategoryName *string
	CategoryName    *string
}

// DateRow is a Dates dimension row before key assignment.
type DateRow struct {
	FullDate  time.Time // midnight UTC
	MonthName string
	Quarter   int
	Year      int
}

// SalesLine is a transformed source sales line, still carrying business keys.
type SalesLine struct {
	Line       int
	CustomerID int64
	ProductID  int64
	DueDate    time.Time // midnight UTC
	Quantity   int64
	Amount     decimal.Decimal
}

// ResolvedFact is a fact row whose references resolved to warehouse keys.
type ResolvedFact struct {
	CustomerKey int64
	ProductKey  int64
	DateKey     int64
	Quantity    int64
	Amount      decimal.Decimal
}

func (c Customer) values() []any {
	return []any{
		c.AlternateKey, c.FullName, optional(c.Address), optional(c.EmailAddress),
		optional(c.City), optional(c.StateProvince), optional(c.CountryRegion),
	}
}

func (p Product) values() []any {
	return []any{
		p.Key, optional(p.Name), optional(p.Color), optional(p.Size),
		optional(p.SubcategoryName), optional(p.CategoryName),
	}
}

func (d DateRow) values() []any {
	return []any{d.FullDate, d.MonthName, d.Quarter, d.Year}
}

func (f ResolvedFact) values() []any {
	return []any{f.CustomerKey, f.ProductKey, f.DateKey, f.Quantity, f.Amount}
}

// optional unwraps a nullable string into a driver argument.
func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
