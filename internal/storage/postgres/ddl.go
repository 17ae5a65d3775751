package postgres

import (
	"fmt"
	"strings"

	"dwh/internal/storage"
)

// columnType maps logical column types to Postgres types. Unknown types are
// passed through verbatim.
func columnType(logical string) string {
	switch strings.ToLower(strings.TrimSpace(logical)) {
	case "int", "integer":
		return "INTEGER"
	case "bigint":
		return "BIGINT"
	case "text", "string":
		return "TEXT"
	case "date":
		return "DATE"
	case "money":
		return "NUMERIC(19,4)"
	default:
		return logical
	}
}

// buildCreateSQL builds CREATE SCHEMA (when qualified) and CREATE TABLE DDL.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}

	cols, err := buildColumnDefs(t)
	if err != nil {
		return "", err
	}
	constraints, err := buildConstraints(t)
	if err != nil {
		return "", err
	}
	cols = append(cols, constraints...)

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s);`, pgIdent(t.Name), strings.Join(cols, ", "))
	if schema, _ := splitQualifiedName(t.Name); schema != "" {
		ddl = fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s; %s`, pgIdent(schema), ddl)
	}
	return ddl, nil
}

// buildColumnDefs returns the list of "<col> <type> ..." definitions.
//
// Primary key handling:
//   - If PrimaryKeySpec is provided, we create it as the first column.
//   - Generated keys become SERIAL so pg_get_serial_sequence can find them.
func buildColumnDefs(t storage.TableSpec) ([]string, error) {
	cols := make([]string, 0, len(t.Columns)+1)

	if t.PrimaryKey != nil {
		pk := strings.TrimSpace(t.PrimaryKey.Name)
		pkType := strings.TrimSpace(t.PrimaryKey.Type)
		if pk == "" || pkType == "" {
			return nil, fmt.Errorf("table %s: primary_key.name and primary_key.type are required", t.Name)
		}
		if t.PrimaryKey.Generated() {
			pkType = "SERIAL"
		} else {
			pkType = columnType(pkType)
		}
		cols = append(cols, fmt.Sprintf(`%s %s PRIMARY KEY`, pgIdent(pk), pkType))
	}

	for _, c := range t.Columns {
		def, err := buildColumnDef(c)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", t.Name, err)
		}
		cols = append(cols, def)
	}

	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s: no columns", t.Name)
	}
	return cols, nil
}

// buildColumnDef renders a single column definition. A nil Nullable means NULL.
func buildColumnDef(c storage.ColumnSpec) (string, error) {
	name := strings.TrimSpace(c.Name)
	typ := strings.TrimSpace(c.Type)
	if name == "" || typ == "" {
		return "", fmt.Errorf("column name/type must be set")
	}

	var b strings.Builder
	b.WriteString(pgIdent(name))
	b.WriteString(" ")
	b.WriteString(columnType(typ))

	if c.Nullable != nil && !*c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if c.References != "" {
		refTable, refCol, err := storage.ParseReference(c.References)
		if err != nil {
			return "", fmt.Errorf("column %s: %w", name, err)
		}
		fmt.Fprintf(&b, " REFERENCES %s(%s)", pgIdent(refTable), pgIdent(refCol))
	}
	return b.String(), nil
}

// buildConstraints generates table-level UNIQUE constraints.
func buildConstraints(t storage.TableSpec) ([]string, error) {
	out := make([]string, 0, len(t.Constraints))
	for _, c := range t.Constraints {
		switch strings.ToLower(strings.TrimSpace(c.Kind)) {
		case "unique":
			if len(c.Columns) == 0 {
				return nil, fmt.Errorf("table %s: unique constraint requires columns", t.Name)
			}
			cols := make([]string, 0, len(c.Columns))
			for _, col := range c.Columns {
				cols = append(cols, pgIdent(strings.TrimSpace(col)))
			}
			out = append(out, "UNIQUE ("+strings.Join(cols, ", ")+")")
		default:
			return nil, fmt.Errorf("table %s: unsupported constraint kind %q", t.Name, c.Kind)
		}
	}
	return out, nil
}
