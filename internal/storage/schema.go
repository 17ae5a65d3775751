// TableSpec types live here so the warehouse package and the backend packages
// can share them without circular imports.
package storage

import (
	"fmt"
	"strings"
)

type TableSpec struct {
	Name        string           `json:"name"`
	PrimaryKey  *PrimaryKeySpec  `json:"primary_key,omitempty"`
	Columns     []ColumnSpec     `json:"columns"`
	Constraints []ConstraintSpec `json:"constraints,omitempty"`
}

type PrimaryKeySpec struct {
	Name string `json:"name"`
	Type string `json:"type"` // serial / identity => generated; anything else is used verbatim
}

// Generated reports whether the key is assigned by the database.
func (p *PrimaryKeySpec) Generated() bool {
	if p == nil {
		return false
	}
	switch p.Type {
	case "serial", "bigserial", "identity", "int identity", "integer identity":
		return true
	}
	return false
}

type ColumnSpec struct {
	Name       string `json:"name"`
	Type       string `json:"type"` // logical type: int, bigint, text, date, money
	References string `json:"references,omitempty"` // "Table(Column)"
	Nullable   *bool  `json:"nullable,omitempty"`
}

type ConstraintSpec struct {
	Kind    string   `json:"kind"` // "unique"
	Columns []string `json:"columns"`
}

// ParseReference splits a "Table(Column)" foreign-key reference so each
// backend can quote both parts its own way.
func ParseReference(ref string) (table, column string, err error) {
	ref = strings.TrimSpace(ref)
	open := strings.IndexByte(ref, '(')
	if open <= 0 || !strings.HasSuffix(ref, ")") {
		return "", "", fmt.Errorf("invalid reference %q: want Table(Column)", ref)
	}
	table = strings.TrimSpace(ref[:open])
	column = strings.TrimSpace(ref[open+1 : len(ref)-1])
	if column == "" {
		return "", "", fmt.Errorf("invalid reference %q: empty column", ref)
	}
	return table, column, nil
}

// ColumnNames returns the names of the non-key columns, in declaration order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	return out
}
