package warehouse

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dwh/internal/source"
)

// Positions within source.CustomerColumns.
const (
	custID = iota
	custFirstName
	custMiddleName
	custLastName
	custAddressLine1
	custAddressLine2
	custEmail
	custCity
	custStateProvince
	custCountryRegion
)

// Positions within source.SalesColumns.
const (
	salesQty = iota
	salesUnitPrice
	salesDiscount
	salesDueDate
	salesCustomerID
	salesProductID
)

func newField(extract string, columns []string, r source.Row) (field, error) {
	if len(r.V) != len(columns) {
		return field{}, fmt.Errorf("%s line %d: got %d values, want %d", extract, r.Line, len(r.V), len(columns))
	}
	return field{extract: extract, line: r.Line, columns: columns, values: r.V}, nil
}

// TransformProducts projects source products onto dimension rows.
func TransformProducts(rows []source.Row) ([]Product, error) {
	out := make([]Product, 0, len(rows))
	for _, r := range rows {
		f, err := newField("products", source.ProductColumns, r)
		if err != nil {
			return nil, err
		}
		key, err := f.int64(0)
		if err != nil {
			return nil, err
		}
		out = append(out, Product{
			Key:             key,
			Name:            f.optString(1),
			Color:           f.optString(2),
			Size:            f.optString(3),
			SubcategoryName: f.optString(4),
			CategoryName:    f.optString(5),
		})
	}
	return out, nil
}

// TransformCustomers builds customer rows, keeping only the first row seen for
// each business key.
func TransformCustomers(rows []source.Row) ([]Customer, error) {
	seen := make(map[int64]struct{}, len(rows))
	out := make([]Customer, 0, len(rows))
	for _, r := range rows {
		f, err := newField("customers", source.CustomerColumns, r)
		if err != nil {
			return nil, err
		}
		id, err := f.int64(custID)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		out = append(out, Customer{
			AlternateKey:  id,
			FullName:      FullName(f.optString(custFirstName), f.optString(custMiddleName), f.optString(custLastName)),
			Address:       JoinAddress(f.optString(custAddressLine1), f.optString(custAddressLine2)),
			EmailAddress:  f.optString(custEmail),
			City:          f.optString(custCity),
			StateProvince: f.optString(custStateProvince),
			CountryRegion: f.optString(custCountryRegion),
		})
	}
	return out, nil
}

// FullName joins the present name parts with single spaces. An absent or blank
// middle name is omitted.
func FullName(first, middle, last *string) string {
	parts := make([]string, 0, 3)
	for _, p := range []*string{first, middle, last} {
		if p == nil {
			continue
		}
		if s := strings.TrimSpace(*p); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// JoinAddress appends line2 to line1 with a space. Without line1 there is no address.
func JoinAddress(line1, line2 *string) *string {
	if line1 == nil || strings.TrimSpace(*line1) == "" {
		return nil
	}
	addr := strings.TrimSpace(*line1)
	if line2 != nil {
		if l2 := strings.TrimSpace(*line2); l2 != "" {
			addr += " " + l2
		}
	}
	return &addr
}

// TransformDates turns due dates into distinct Dates rows in ascending order.
func TransformDates(rows []source.Row) ([]DateRow, error) {
	seen := make(map[time.Time]struct{}, len(rows))
	days := make([]time.Time, 0, len(rows))
	for _, r := range rows {
		f, err := newField("due_dates", source.DueDateColumns, r)
		if err != nil {
			return nil, err
		}
		d, err := f.date(0)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	out := make([]DateRow, len(days))
	for i, d := range days {
		out[i] = NewDateRow(d)
	}
	return out, nil
}

// NewDateRow derives the Dates attributes of a calendar date.
func NewDateRow(d time.Time) DateRow {
	d = dateOnly(d)
	return DateRow{
		FullDate:  d,
		MonthName: d.Month().String(),
		Quarter:   Quarter(d.Month()),
		Year:      d.Year(),
	}
}

// Quarter returns the calendar quarter (1-4) of m.
func Quarter(m time.Month) int {
	return (int(m)-1)/3 + 1
}

// TransformSales coerces source sales lines and computes their amounts.
func TransformSales(rows []source.Row) ([]SalesLine, error) {
	out := make([]SalesLine, 0, len(rows))
	for _, r := range rows {
		f, err := newField("sales_lines", source.SalesColumns, r)
		if err != nil {
			return nil, err
		}

		qty, err := f.int64(salesQty)
		if err != nil {
			return nil, err
		}
		if qty < 0 {
			return nil, f.fail(salesQty, fmt.Errorf("negative quantity"))
		}
		price, err := f.decimal(salesUnitPrice)
		if err != nil {
			return nil, err
		}
		discount, err := f.decimal(salesDiscount)
		if err != nil {
			return nil, err
		}
		if discount.IsNegative() || discount.GreaterThan(decimal.NewFromInt(1)) {
			return nil, f.fail(salesDiscount, fmt.Errorf("discount outside [0,1]"))
		}
		due, err := f.date(salesDueDate)
		if err != nil {
			return nil, err
		}
		customerID, err := f.int64(salesCustomerID)
		if err != nil {
			return nil, err
		}
		productID, err := f.int64(salesProductID)
		if err != nil {
			return nil, err
		}

		out = append(out, SalesLine{
			Line:       r.Line,
			CustomerID: customerID,
			ProductID:  productID,
			DueDate:    due,
			Quantity:   qty,
			Amount:     SalesAmount(price, qty, discount),
		})
	}
	return out, nil
}

// SalesAmount is unit_price * quantity * (1 - discount), rounded half away
// from zero to 4 decimal places.
func SalesAmount(unitPrice decimal.Decimal, quantity int64, discount decimal.Decimal) decimal.Decimal {
	return unitPrice.
		Mul(decimal.NewFromInt(quantity)).
		Mul(decimal.NewFromInt(1).Sub(discount)).
		Round(4)
}
