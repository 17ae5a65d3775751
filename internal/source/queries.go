package source

// Queries is the SQL a database reader runs. Each statement must project the
// columns of the matching *Columns list, in order.
type Queries struct {
	Customers  string
	Products   string
	DueDates   string
	SalesLines string
}

// DefaultQueries target the AdventureWorks OLTP schema. Identifiers are left
// unquoted so the same text runs against SQL Server, SQLite (with the schemas
// attached as databases) and the lower-cased Postgres port.
//
// A customer with several addresses or e-mail addresses yields several rows;
// the transformer keeps the first.
var DefaultQueries = Queries{
	Customers: `
SELECT c.CustomerID, p.FirstName, p.MiddleName, p.LastName,
       a.AddressLine1, a.AddressLine2, e.EmailAddress,
       a.City, sp.Name, cr.Name
FROM Sales.Customer c
JOIN Person.Person p ON p.BusinessEntityID = c.PersonID
LEFT JOIN Person.EmailAddress e ON e.BusinessEntityID = p.BusinessEntityID
LEFT JOIN Person.BusinessEntityAddress bea ON bea.BusinessEntityID = p.BusinessEntityID
LEFT JOIN Person.Address a ON a.AddressID = bea.AddressID
LEFT JOIN Person.StateProvince sp ON sp.StateProvinceID = a.StateProvinceID
LEFT JOIN Person.CountryRegion cr ON cr.CountryRegionCode = sp.CountryRegionCode
ORDER BY c.CustomerID, a.AddressID, e.EmailAddressID`,

	Products: `
SELECT pr.ProductID, pr.Name, pr.Color, pr.Size, ps.Name, pc.Name
FROM Production.Product pr
LEFT JOIN Production.ProductSubcategory ps ON ps.ProductSubcategoryID = pr.ProductSubcategoryID
LEFT JOIN Production.ProductCategory pc ON pc.ProductCategoryID = ps.ProductCategoryID
ORDER BY pr.ProductID`,

	DueDates: `
SELECT DISTINCT h.DueDate
FROM Sales.SalesOrderHeader h
JOIN Sales.SalesOrderDetail d ON d.SalesOrderID = h.SalesOrderID
ORDER BY h.DueDate`,

	SalesLines: `
SELECT d.OrderQty, d.UnitPrice, d.UnitPriceDiscount, h.DueDate, h.CustomerID, d.ProductID
FROM Sales.SalesOrderDetail d
JOIN Sales.SalesOrderHeader h ON h.SalesOrderID = d.SalesOrderID
ORDER BY d.SalesOrderID, d.SalesOrderDetailID`,
}

// Statement returns the query for an extract name, used in error messages and logs.
func (q Queries) Statement(extract string) string {
	switch extract {
	case "customers":
		return q.Customers
	case "products":
		return q.Products
	case "due_dates":
		return q.DueDates
	case "sales_lines":
		return q.SalesLines
	default:
		return ""
	}
}
