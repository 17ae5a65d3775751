package warehouse

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dwh/internal/storage"
)

func TestSummary_Line(t *testing.T) {
	t.Parallel()

	s := Summary{
		Job: "dwh_sales",
		Facts: FactReport{
			SourceRows: 60402,
			Inserted:   60398,
			Skipped:    SkipCounts{MissingCustomer: 4},
			Stats: storage.FactStats{
				AmountSum:         decimal.RequireFromString("29358677.2207"),
				DistinctCustomers: 18484,
				DistinctProducts:  158,
			},
		},
		Counts: []TableCount{
			{Table: TableCustomers, Rows: 18484},
			{Table: TableInternetSales, Rows: 60398},
		},
	}

	want := "Customers=18,484 InternetSales=60,398 skipped=4 amount=29,358,677.2207 distinct_customers=18,484 distinct_products=158"
	if got := s.Line(); got != want {
		t.Fatalf("Line()=%q\nwant     %q", got, want)
	}
}

func TestSummary_LogWarnsOnSkips(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	s := Summary{Job: "j", Facts: FactReport{SourceRows: 10, Skipped: SkipCounts{MissingProduct: 1, MissingDate: 2}}}
	s.Log(zerolog.New(&buf))

	out := buf.String()
	if !strings.Contains(out, `"level":"warn"`) || !strings.Contains(out, "3 of 10 sales lines skipped") {
		t.Fatalf("missing skip warning: %s", out)
	}

	buf.Reset()
	Summary{Job: "j"}.Log(zerolog.New(&buf))
	if strings.Contains(buf.String(), `"level":"warn"`) {
		t.Fatalf("unexpected warning: %s", buf.String())
	}
}

func TestFormatAmount(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"0":         "0.0000",
		"10":        "10.0000",
		"1234.5":    "1,234.5000",
		"-1234.56":  "-1,234.5600",
		"-0.5":      "-0.5000",
		"999999.99": "999,999.9900",
	}
	for in, want := range tests {
		if got := formatAmount(decimal.RequireFromString(in)); got != want {
			t.Fatalf("formatAmount(%s)=%q, want %q", in, got, want)
		}
	}
}
