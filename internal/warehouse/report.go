package warehouse

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Summary is the outcome of a full run.
type Summary struct {
	Job        string
	Dimensions DimensionReport
	Facts      FactReport
	Counts     []TableCount
}

var printer = message.NewPrinter(language.English)

// Line renders the summary as one human-readable line.
func (s Summary) Line() string {
	parts := make([]string, 0, len(s.Counts)+4)
	for _, c := range s.Counts {
		parts = append(parts, printer.Sprintf("%s=%d", c.Table, c.Rows))
	}
	parts = append(parts,
		printer.Sprintf("skipped=%d", s.Facts.Skipped.Total()),
		"amount="+formatAmount(s.Facts.Stats.AmountSum),
		printer.Sprintf("distinct_customers=%d", s.Facts.Stats.DistinctCustomers),
		printer.Sprintf("distinct_products=%d", s.Facts.Stats.DistinctProducts),
	)
	return strings.Join(parts, " ")
}

// Log writes the summary at info, with the skip breakdown at warn when any
// sales line was dropped.
func (s Summary) Log(l zerolog.Logger) {
	ev := l.Info().Str("job", s.Job)
	for _, c := range s.Counts {
		ev = ev.Int64(strings.ToLower(c.Table), c.Rows)
	}
	ev.Msg("run complete: " + s.Line())

	if sk := s.Facts.Skipped; sk.Total() > 0 {
		l.Warn().
			Int64("missing_product", sk.MissingProduct).
			Int64("missing_date", sk.MissingDate).
			Int64("missing_customer", sk.MissingCustomer).
			Msg(printer.Sprintf("%d of %d sales lines skipped", sk.Total(), s.Facts.SourceRows))
	}
}

// formatAmount renders d with 4 decimals and thousands separators.
func formatAmount(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(4)
	frac := ""
	if i := strings.IndexByte(fixed, '.'); i >= 0 {
		frac = fixed[i:]
	}
	out := printer.Sprintf("%d", d.Abs().IntPart()) + frac
	if d.IsNegative() {
		out = "-" + out
	}
	return out
}
