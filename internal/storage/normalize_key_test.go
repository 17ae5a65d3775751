package storage

import (
	"testing"
	"time"
)

func TestNormalizeKey_TableDriven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "nil", in: nil, want: ""},
		{name: "int64", in: int64(29825), want: "29825"},
		{name: "int32", in: int32(7), want: "7"},
		{name: "int16", in: int16(-3), want: "-3"},
		{name: "int", in: 42, want: "42"},
		{name: "float_integral", in: float64(10), want: "10"},
		{name: "string_trimmed", in: "  AW00011000 ", want: "AW00011000"},
		{name: "bytes", in: []byte(" 12 "), want: "12"},
		{name: "date_midnight", in: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), want: "2024-01-15"},
		{name: "date_with_clock", in: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), want: "2024-01-15T10:30:00Z"},
		{name: "text_date", in: "2024-01-15", want: "2024-01-15"},
		{name: "text_sqlite_time", in: "2024-01-15 00:00:00+00:00", want: "2024-01-15"},
		{name: "text_go_time_string", in: "2024-01-15 00:00:00 +0000 UTC", want: "2024-01-15"},
		{name: "text_iso_midnight", in: "2024-01-15T00:00:00Z", want: "2024-01-15"},
		{name: "text_not_a_date", in: "2024-XX-15", want: "2024-XX-15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeKey(tt.in); got != tt.want {
				t.Fatalf("NormalizeKey(%#v)=%q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestChunkRows_RespectsParameterLimit(t *testing.T) {
	rows := make([][]any, 7)
	for i := range rows {
		rows[i] = []any{i, i, i}
	}

	chunks := ChunkRows(rows, 3, 6)
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	total := 0
	for _, c := range chunks {
		if len(c)*3 > 6 {
			t.Fatalf("chunk binds %d params, limit 6", len(c)*3)
		}
		total += len(c)
	}
	if total != len(rows) {
		t.Fatalf("chunks hold %d rows, want %d", total, len(rows))
	}

	// A row wider than the limit still goes out alone.
	wide := ChunkRows([][]any{{1, 2, 3}}, 3, 2)
	if len(wide) != 1 || len(wide[0]) != 1 {
		t.Fatalf("unexpected chunks for wide row: %v", wide)
	}

	if ChunkRows(nil, 3, 10) != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestPrimaryKeySpec_Generated(t *testing.T) {
	var nilPK *PrimaryKeySpec
	if nilPK.Generated() {
		t.Fatalf("nil pk must not be generated")
	}
	if !(&PrimaryKeySpec{Name: "DateKey", Type: "serial"}).Generated() {
		t.Fatalf("serial must be generated")
	}
	if (&PrimaryKeySpec{Name: "ProductKey", Type: "int"}).Generated() {
		t.Fatalf("int must not be generated")
	}
}

func TestParseReference(t *testing.T) {
	t.Parallel()

	table, col, err := ParseReference(" Customers(CustomerKey) ")
	if err != nil {
		t.Fatalf("ParseReference: %v", err)
	}
	if table != "Customers" || col != "CustomerKey" {
		t.Fatalf("got (%q, %q)", table, col)
	}

	for _, bad := range []string{"", "Customers", "(x)", "Customers()", "Customers(x"} {
		if _, _, err := ParseReference(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
