package postgres

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"dwh/internal/storage"
)

// boolPtr is a tiny helper to avoid repeating &[]bool literals in tests.
func boolPtr(v bool) *bool { return &v }

func TestBuildCreateSQL_DimensionWithGeneratedKey(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{
		Name:       "public.Customers",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "CustomerKey", Type: "serial"},
		Columns: []storage.ColumnSpec{
			{Name: "CustomerAlternateKey", Type: "int", Nullable: boolPtr(false)},
			{Name: "Address", Type: "text", Nullable: boolPtr(true)},
		},
		Constraints: []storage.ConstraintSpec{{Kind: "unique", Columns: []string{"CustomerAlternateKey"}}},
	}

	ddl, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	for _, want := range []string{
		`CREATE SCHEMA IF NOT EXISTS "public";`,
		`CREATE TABLE IF NOT EXISTS "public"."Customers"`,
		`"CustomerKey" SERIAL PRIMARY KEY`,
		`"CustomerAlternateKey" INTEGER NOT NULL`,
		`"Address" TEXT,`,
		`UNIQUE ("CustomerAlternateKey")`,
	} {
		if !strings.Contains(ddl, want) {
			t.Fatalf("ddl missing %q:\n%s", want, ddl)
		}
	}
}

func TestBuildCreateSQL_FactReferencesAndMoney(t *testing.T) {
	t.Parallel()

	spec := storage.TableSpec{
		Name:       "InternetSales",
		PrimaryKey: &storage.PrimaryKeySpec{Name: "InternetSalesKey", Type: "serial"},
		Columns: []storage.ColumnSpec{
			{Name: "ProductKey", Type: "int", Nullable: boolPtr(false), References: "Products(ProductKey)"},
			{Name: "SalesAmount", Type: "money", Nullable: boolPtr(false)},
		},
	}

	ddl, err := buildCreateSQL(spec)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	if strings.Contains(ddl, "CREATE SCHEMA") {
		t.Fatalf("unqualified table must not create a schema: %s", ddl)
	}
	if !strings.Contains(ddl, `"ProductKey" INTEGER NOT NULL REFERENCES "Products"("ProductKey")`) {
		t.Fatalf("missing FK: %s", ddl)
	}
	if !strings.Contains(ddl, `"SalesAmount" NUMERIC(19,4) NOT NULL`) {
		t.Fatalf("missing money column: %s", ddl)
	}

	spec.Columns[0].References = "Products"
	if _, err := buildCreateSQL(spec); err == nil {
		t.Fatalf("expected error for malformed reference")
	}
}

func TestBuildCreateSQL_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		spec storage.TableSpec
	}{
		{name: "empty_name", spec: storage.TableSpec{Name: " "}},
		{name: "no_columns", spec: storage.TableSpec{Name: "t"}},
		{name: "pk_without_type", spec: storage.TableSpec{Name: "t", PrimaryKey: &storage.PrimaryKeySpec{Name: "id"}}},
		{name: "bad_constraint", spec: storage.TableSpec{
			Name:        "t",
			Columns:     []storage.ColumnSpec{{Name: "a", Type: "int"}},
			Constraints: []storage.ConstraintSpec{{Kind: "check", Columns: []string{"a"}}},
		}},
		{name: "unique_without_columns", spec: storage.TableSpec{
			Name:        "t",
			Columns:     []storage.ColumnSpec{{Name: "a", Type: "int"}},
			Constraints: []storage.ConstraintSpec{{Kind: "unique"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buildCreateSQL(tt.spec); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestBuildInsertSQL_NumbersPlaceholders(t *testing.T) {
	t.Parallel()

	sql, args := buildInsertSQL("Products", []string{"ProductKey", "ProductName"}, [][]any{
		{1, "Bike"},
		{2, nil},
	})
	want := `INSERT INTO "Products" ("ProductKey", "ProductName") VALUES ($1, $2), ($3, $4)`
	if sql != want {
		t.Fatalf("sql=%q, want %q", sql, want)
	}
	if !reflect.DeepEqual(args, []any{1, "Bike", 2, nil}) {
		t.Fatalf("args=%v", args)
	}
}

func TestPgIdent(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Customers":        `"Customers"`,
		"public.Customers": `"public"."Customers"`,
		`we"ird`:           `"we""ird"`,
	}
	for in, want := range tests {
		if got := pgIdent(in); got != want {
			t.Fatalf("pgIdent(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestClassify_SchemaErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code string
		want bool
	}{
		{code: "42P01", want: true},
		{code: "42703", want: true},
		{code: "23503", want: false},
	}
	for _, tt := range tests {
		err := Classify(fmt.Errorf("exec: %w", &pgconn.PgError{Code: tt.code, Message: "boom"}))
		if got := errors.Is(err, storage.ErrSchemaMismatch); got != tt.want {
			t.Fatalf("code %s: schema mismatch=%v, want %v", tt.code, got, tt.want)
		}
	}
	if Classify(nil) != nil {
		t.Fatalf("Classify(nil) must be nil")
	}
}
