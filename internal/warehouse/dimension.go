package warehouse

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"dwh/internal/metrics"
	"dwh/internal/storage"
)

// DefaultBatchSize bounds the number of rows handed to a single InsertRows call.
const DefaultBatchSize = 1000

// DimensionLoader fully reloads one dimension table.
//
// Load always clears FactTable before touching the dimension so that foreign
// keys from facts never point at deleted rows.
type DimensionLoader struct {
	Repo   storage.Repository
	Logger zerolog.Logger

	// BatchSize defaults to DefaultBatchSize.
	BatchSize int

	// Transactional runs clear, reset and insert as one transaction.
	Transactional bool

	// FactTable defaults to TableInternetSales.
	FactTable string
}

// Load replaces the contents of table with rows and returns the number of rows
// inserted. rows must be aligned with insertColumns(table).
//
// Steps, in order:
//  1. delete every fact row
//  2. delete every row of table
//  3. reset the key generator when table has a generated key
//  4. insert rows in batches
func (l *DimensionLoader) Load(ctx context.Context, table storage.TableSpec, rows [][]any) (int64, error) {
	if l.Repo == nil {
		return 0, fmt.Errorf("dimension loader: Repo is required")
	}
	factTable := l.FactTable
	if factTable == "" {
		factTable = TableInternetSales
	}
	cols := insertColumns(table)

	var inserted int64
	err := withWriter(ctx, l.Repo, l.Transactional, func(w storage.Writer) error {
		facts, err := w.DeleteAll(ctx, factTable)
		if err != nil {
			return fmt.Errorf("clear %s: %w", factTable, err)
		}
		old, err := w.DeleteAll(ctx, table.Name)
		if err != nil {
			return fmt.Errorf("clear %s: %w", table.Name, err)
		}
		if table.PrimaryKey.Generated() {
			if err := w.ResetIdentity(ctx, table.Name, table.PrimaryKey.Name); err != nil {
				return fmt.Errorf("reset identity %s.%s: %w", table.Name, table.PrimaryKey.Name, err)
			}
		}
		l.Logger.Debug().
			Str("table", table.Name).
			Int64("facts_deleted", facts).
			Int64("rows_deleted", old).
			Msg("dimension cleared")

		inserted, err = insertBatches(ctx, w, table.Name, cols, rows, l.BatchSize)
		return err
	})
	if err != nil {
		return 0, err
	}

	metrics.RecordRecords(table.Name, inserted)
	return inserted, nil
}

// withWriter runs fn against a transaction when transactional is set, and
// against the repository's autocommit connection otherwise.
func withWriter(ctx context.Context, repo storage.Repository, transactional bool, fn func(storage.Writer) error) error {
	if !transactional {
		return fn(repo)
	}

	tx, err := repo.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// insertBatches writes rows in slices of at most batchSize.
func insertBatches(ctx context.Context, w storage.Writer, table string, cols []string, rows [][]any, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var total, batches int64
	for start := 0; start < len(rows); start += batchSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		end := min(start+batchSize, len(rows))

		n, err := w.InsertRows(ctx, table, cols, rows[start:end])
		total += n
		if err != nil {
			return total, fmt.Errorf("insert %s rows %d-%d: %w", table, start, end-1, err)
		}
		batches++
	}
	metrics.RecordBatches(batches)
	return total, nil
}
