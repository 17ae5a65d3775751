package warehouse

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"dwh/internal/metrics"
	"dwh/internal/storage"
)

// SkipCounts tallies sales lines dropped because a reference did not resolve.
// Each line is counted at most once, against the first check it fails.
type SkipCounts struct {
	MissingProduct  int64
	MissingDate     int64
	MissingCustomer int64
}

func (s SkipCounts) Total() int64 {
	return s.MissingProduct + s.MissingDate + s.MissingCustomer
}

// Classify resolves lines against lk. Checks run product, then date, then
// customer; the first miss decides the bucket.
func Classify(lines []SalesLine, lk *Lookups) ([]ResolvedFact, SkipCounts) {
	var skipped SkipCounts
	out := make([]ResolvedFact, 0, len(lines))
	for _, ln := range lines {
		if !lk.HasProduct(ln.ProductID) {
			skipped.MissingProduct++
			continue
		}
		dateKey, ok := lk.DateKey(ln.DueDate)
		if !ok {
			skipped.MissingDate++
			continue
		}
		customerKey, ok := lk.CustomerKey(ln.CustomerID)
		if !ok {
			skipped.MissingCustomer++
			continue
		}
		out = append(out, ResolvedFact{
			CustomerKey: customerKey,
			ProductKey:  ln.ProductID,
			DateKey:     dateKey,
			Quantity:    ln.Quantity,
			Amount:      ln.Amount,
		})
	}
	return out, skipped
}

// FactReport summarizes one fact load.
type FactReport struct {
	SourceRows int64
	Inserted   int64
	Skipped    SkipCounts
	Stats      storage.FactStats
}

// FactLoader reloads the fact table from resolved sales lines.
type FactLoader struct {
	Repo   storage.Repository
	Logger zerolog.Logger

	// BatchSize defaults to DefaultBatchSize.
	BatchSize int

	// Transactional runs clear, reset and insert as one transaction.
	Transactional bool
}

// Load classifies lines against lk, replaces the fact table with the resolved
// rows and reads the aggregates back from the warehouse.
func (l *FactLoader) Load(ctx context.Context, lines []SalesLine, lk *Lookups) (FactReport, error) {
	if l.Repo == nil {
		return FactReport{}, fmt.Errorf("fact loader: Repo is required")
	}
	if lk == nil {
		return FactReport{}, fmt.Errorf("fact loader: lookups are required")
	}

	facts, skipped := Classify(lines, lk)
	rep := FactReport{SourceRows: int64(len(lines)), Skipped: skipped}

	if skipped.Total() > 0 {
		l.Logger.Warn().
			Int64("missing_product", skipped.MissingProduct).
			Int64("missing_date", skipped.MissingDate).
			Int64("missing_customer", skipped.MissingCustomer).
			Int64("source_rows", rep.SourceRows).
			Msg("sales lines skipped")
	}
	metrics.RecordRecords("skipped_missing_product", skipped.MissingProduct)
	metrics.RecordRecords("skipped_missing_date", skipped.MissingDate)
	metrics.RecordRecords("skipped_missing_customer", skipped.MissingCustomer)

	rows := make([][]any, len(facts))
	for i, f := range facts {
		rows[i] = f.values()
	}

	table := InternetSalesTable
	err := withWriter(ctx, l.Repo, l.Transactional, func(w storage.Writer) error {
		if _, err := w.DeleteAll(ctx, table.Name); err != nil {
			return fmt.Errorf("clear %s: %w", table.Name, err)
		}
		if err := w.ResetIdentity(ctx, table.Name, table.PrimaryKey.Name); err != nil {
			return fmt.Errorf("reset identity %s.%s: %w", table.Name, table.PrimaryKey.Name, err)
		}
		n, err := insertBatches(ctx, w, table.Name, insertColumns(table), rows, l.BatchSize)
		rep.Inserted = n
		return err
	})
	if err != nil {
		return rep, err
	}
	metrics.RecordRecords("fact_loaded", rep.Inserted)

	stats, err := l.Repo.SelectFactStats(ctx, factStatsQuery())
	if err != nil {
		return rep, fmt.Errorf("fact stats: %w", err)
	}
	rep.Stats = stats
	return rep, nil
}
