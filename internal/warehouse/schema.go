package warehouse

import "dwh/internal/storage"

// Star schema table names.
const (
	TableCustomers     = "Customers"
	TableProducts      = "Products"
	TableDates         = "Dates"
	TableInternetSales = "InternetSales"
)

func notNull() *bool { b := false; return &b }

// CustomersTable is the customer dimension. CustomerKey is generated.
var CustomersTable = storage.TableSpec{
	Name:       TableCustomers,
	PrimaryKey: &storage.PrimaryKeySpec{Name: "CustomerKey", Type: "identity"},
	Columns: []storage.ColumnSpec{
		{Name: "CustomerAlternateKey", Type: "int", Nullable: notNull()},
		{Name: "FullName", Type: "text"},
		{Name: "Address", Type: "text"},
		{Name: "EmailAddress", Type: "text"},
		{Name: "City", Type: "text"},
		{Name: "StateProvince", Type: "text"},
		{Name: "CountryRegion", Type: "text"},
	},
	Constraints: []storage.ConstraintSpec{{Kind: "unique", Columns: []string{"CustomerAlternateKey"}}},
}

// ProductsTable is the product dimension. ProductKey is the source product id.
var ProductsTable = storage.TableSpec{
	Name:       TableProducts,
	PrimaryKey: &storage.PrimaryKeySpec{Name: "ProductKey", Type: "int"},
	Columns: []storage.ColumnSpec{
		{Name: "ProductName", Type: "text"},
		{Name: "Color", Type: "text"},
		{Name: "Size", Type: "text"},
		{Name: "SubcategoryName", Type: "text"},
		{Name: "CategoryName", Type: "text"},
	},
}

// DatesTable is the date dimension, one row per distinct due date.
var DatesTable = storage.TableSpec{
	Name:       TableDates,
	PrimaryKey: &storage.PrimaryKeySpec{Name: "DateKey", Type: "identity"},
	Columns: []storage.ColumnSpec{
		{Name: "FullDate", Type: "date", Nullable: notNull()},
		{Name: "MonthNumberName", Type: "text"},
		{Name: "CalendarQuarter", Type: "int"},
		{Name: "CalendarYear", Type: "int"},
	},
	Constraints: []storage.ConstraintSpec{{Kind: "unique", Columns: []string{"FullDate"}}},
}

// InternetSalesTable is the fact table.
var InternetSalesTable = storage.TableSpec{
	Name:       TableInternetSales,
	PrimaryKey: &storage.PrimaryKeySpec{Name: "InternetSalesKey", Type: "identity"},
	Columns: []storage.ColumnSpec{
		{Name: "CustomerKey", Type: "int", Nullable: notNull(), References: "Customers(CustomerKey)"},
		{Name: "ProductKey", Type: "int", Nullable: notNull(), References: "Products(ProductKey)"},
		{Name: "DateKey", Type: "int", Nullable: notNull(), References: "Dates(DateKey)"},
		{Name: "OrderQuantity", Type: "int", Nullable: notNull()},
		{Name: "SalesAmount", Type: "money", Nullable: notNull()},
	},
}

// StarSchema lists every table, dimensions before the fact that references them.
func StarSchema() []storage.TableSpec {
	return []storage.TableSpec{CustomersTable, ProductsTable, DatesTable, InternetSalesTable}
}

// insertColumns is the column list the loader writes. A key the database does
// not generate is written explicitly and comes first.
func insertColumns(t storage.TableSpec) []string {
	cols := t.ColumnNames()
	if t.PrimaryKey != nil && !t.PrimaryKey.Generated() {
		cols = append([]string{t.PrimaryKey.Name}, cols...)
	}
	return cols
}

func factStatsQuery() storage.FactStatsQuery {
	return storage.FactStatsQuery{
		Table:          TableInternetSales,
		AmountColumn:   "SalesAmount",
		CustomerColumn: "CustomerKey",
		ProductColumn:  "ProductKey",
	}
}
