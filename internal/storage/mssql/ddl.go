package mssql

import (
	"fmt"
	"strings"

	"dwh/internal/storage"
)

// columnType maps logical column types to SQL Server types.
func columnType(logical string) string {
	switch strings.ToLower(strings.TrimSpace(logical)) {
	case "int", "integer":
		return "INT"
	case "bigint":
		return "BIGINT"
	case "text", "string":
		return "NVARCHAR(255)"
	case "date":
		return "DATE"
	case "money":
		return "DECIMAL(19,4)"
	default:
		return logical
	}
}

// buildCreateSQL renders CREATE TABLE wrapped in an OBJECT_ID guard.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}

	var defs []string
	if t.PrimaryKey != nil {
		def, err := mssqlPrimaryKeyDef(*t.PrimaryKey)
		if err != nil {
			return "", err
		}
		defs = append(defs, def)
	}
	for _, c := range t.Columns {
		def, err := mssqlColumnDef(c)
		if err != nil {
			return "", fmt.Errorf("mssql: table %s: %w", t.Name, err)
		}
		defs = append(defs, def)
	}
	for _, con := range t.Constraints {
		if strings.ToLower(strings.TrimSpace(con.Kind)) != "unique" {
			return "", fmt.Errorf("mssql: table %s: unsupported constraint kind %q", t.Name, con.Kind)
		}
		if len(con.Columns) == 0 {
			return "", fmt.Errorf("mssql: table %s: unique constraint requires columns", t.Name)
		}
		cols := make([]string, 0, len(con.Columns))
		for _, c := range con.Columns {
			cols = append(cols, mssqlIdent(strings.TrimSpace(c)))
		}
		defs = append(defs, "UNIQUE ("+strings.Join(cols, ", ")+")")
	}
	if len(defs) == 0 {
		return "", fmt.Errorf("mssql: table %s: no columns", t.Name)
	}

	return wrapCreateIfMissing(t.Name, strings.Join(defs, ", ")), nil
}

// wrapCreateIfMissing wraps a CREATE TABLE statement in an OBJECT_ID guard.
//
// This keeps EnsureTables idempotent without requiring IF NOT EXISTS syntax.
func wrapCreateIfMissing(tableName string, innerDefs string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		strings.ReplaceAll(mssqlTableIdent(tableName), "'", "''"),
		mssqlTableIdent(tableName),
		innerDefs,
	)
}

// mssqlPrimaryKeyDef returns a column definition for a primary key.
//
// Supported types (case-insensitive):
//   - "serial", "identity" variants -> INT IDENTITY(1,1) PRIMARY KEY
//   - "bigserial" -> BIGINT IDENTITY(1,1) PRIMARY KEY
//   - otherwise the mapped logical type with PRIMARY KEY.
func mssqlPrimaryKeyDef(pk storage.PrimaryKeySpec) (string, error) {
	if strings.TrimSpace(pk.Name) == "" {
		return "", fmt.Errorf("mssql: primary key name is empty")
	}
	switch strings.ToLower(strings.TrimSpace(pk.Type)) {
	case "bigserial":
		return fmt.Sprintf("%s BIGINT IDENTITY(1,1) PRIMARY KEY", mssqlIdent(pk.Name)), nil
	case "":
		return "", fmt.Errorf("mssql: primary key %s type is empty", pk.Name)
	}
	if pk.Generated() {
		return fmt.Sprintf("%s INT IDENTITY(1,1) PRIMARY KEY", mssqlIdent(pk.Name)), nil
	}
	return fmt.Sprintf("%s %s PRIMARY KEY", mssqlIdent(pk.Name), columnType(pk.Type)), nil
}

// mssqlColumnDef builds a SQL Server column definition from storage.ColumnSpec.
//
// It respects nullability and attaches a REFERENCES clause if provided.
func mssqlColumnDef(c storage.ColumnSpec) (string, error) {
	if strings.TrimSpace(c.Name) == "" {
		return "", fmt.Errorf("mssql: column name is empty")
	}
	if strings.TrimSpace(c.Type) == "" {
		return "", fmt.Errorf("mssql: column %s type is empty", c.Name)
	}

	var b strings.Builder
	b.WriteString(mssqlIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(columnType(c.Type))

	if c.Nullable != nil && !*c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if strings.TrimSpace(c.References) != "" {
		refTable, refCol, err := storage.ParseReference(c.References)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, " REFERENCES %s(%s)", mssqlTableIdent(refTable), mssqlIdent(refCol))
	}

	return b.String(), nil
}
