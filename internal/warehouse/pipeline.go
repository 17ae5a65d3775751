package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"dwh/internal/metrics"
	"dwh/internal/source"
	"dwh/internal/storage"
)

// Options tune a Pipeline.
type Options struct {
	BatchSize     int
	Transactional bool
	CreateSchema  bool
}

// Pipeline runs the load stages against an open source and warehouse. It owns
// neither connection.
type Pipeline struct {
	Source  source.Reader
	Repo    storage.Repository
	Logger  zerolog.Logger
	Options Options
}

// DimensionReport holds the rows inserted per dimension.
type DimensionReport struct {
	Products  int64
	Customers int64
	Dates     int64
}

// EnsureSchema creates any missing star schema table.
func (p *Pipeline) EnsureSchema(ctx context.Context) error {
	return p.step(ctx, StageSchema, func() (*zerolog.Event, error) {
		if err := p.Repo.EnsureTables(ctx, StarSchema()); err != nil {
			return nil, err
		}
		return p.Logger.Info().Int("tables", len(StarSchema())), nil
	})
}

// LoadDimensions reloads Products, Customers and Dates, in that order.
func (p *Pipeline) LoadDimensions(ctx context.Context) (DimensionReport, error) {
	var rep DimensionReport
	if p.Options.CreateSchema {
		if err := p.EnsureSchema(ctx); err != nil {
			return rep, err
		}
	}

	dims := p.dimensionLoader()

	err := p.step(ctx, StageLoadProducts, func() (*zerolog.Event, error) {
		src, err := p.Source.Products(ctx)
		if err != nil {
			return nil, fmt.Errorf("extract products: %w", err)
		}
		products, err := TransformProducts(src)
		if err != nil {
			return nil, err
		}
		rows := make([][]any, len(products))
		for i, pr := range products {
			rows[i] = pr.values()
		}
		rep.Products, err = dims.Load(ctx, ProductsTable, rows)
		return p.Logger.Info().Int("source_rows", len(src)).Int64("inserted", rep.Products), err
	})
	if err != nil {
		return rep, err
	}

	err = p.step(ctx, StageLoadCustomers, func() (*zerolog.Event, error) {
		src, err := p.Source.Customers(ctx)
		if err != nil {
			return nil, fmt.Errorf("extract customers: %w", err)
		}
		customers, err := TransformCustomers(src)
		if err != nil {
			return nil, err
		}
		rows := make([][]any, len(customers))
		for i, c := range customers {
			rows[i] = c.values()
		}
		rep.Customers, err = dims.Load(ctx, CustomersTable, rows)
		return p.Logger.Info().
			Int("source_rows", len(src)).
			Int("duplicates", len(src)-len(customers)).
			Int64("inserted", rep.Customers), err
	})
	if err != nil {
		return rep, err
	}

	err = p.step(ctx, StageLoadDates, func() (*zerolog.Event, error) {
		src, err := p.Source.DueDates(ctx)
		if err != nil {
			return nil, fmt.Errorf("extract due dates: %w", err)
		}
		dates, err := TransformDates(src)
		if err != nil {
			return nil, err
		}
		rows := make([][]any, len(dates))
		for i, d := range dates {
			rows[i] = d.values()
		}
		rep.Dates, err = dims.Load(ctx, DatesTable, rows)
		return p.Logger.Info().Int("source_rows", len(src)).Int64("inserted", rep.Dates), err
	})
	return rep, err
}

// LoadFacts rebuilds the key lookups from the current dimensions and reloads
// InternetSales.
func (p *Pipeline) LoadFacts(ctx context.Context) (FactReport, error) {
	if p.Options.CreateSchema {
		if err := p.EnsureSchema(ctx); err != nil {
			return FactReport{}, err
		}
	}

	var lk *Lookups
	err := p.step(ctx, StageBuildLookups, func() (*zerolog.Event, error) {
		var err error
		lk, err = BuildLookups(ctx, p.Repo)
		if err != nil {
			return nil, err
		}
		products, dates, customers := lk.Sizes()
		return p.Logger.Info().
			Int("products", products).
			Int("dates", dates).
			Int("customers", customers), nil
	})
	if err != nil {
		return FactReport{}, err
	}

	var rep FactReport
	err = p.step(ctx, StageLoadFacts, func() (*zerolog.Event, error) {
		src, err := p.Source.SalesLines(ctx)
		if err != nil {
			return nil, fmt.Errorf("extract sales lines: %w", err)
		}
		lines, err := TransformSales(src)
		if err != nil {
			return nil, err
		}
		loader := &FactLoader{
			Repo:          p.Repo,
			Logger:        p.Logger,
			BatchSize:     p.Options.BatchSize,
			Transactional: p.Options.Transactional,
		}
		rep, err = loader.Load(ctx, lines, lk)
		if err != nil {
			return nil, err
		}
		return p.Logger.Info().
			Int64("source_rows", rep.SourceRows).
			Int64("inserted", rep.Inserted).
			Int64("skipped", rep.Skipped.Total()).
			Str("amount_sum", rep.Stats.AmountSum.StringFixed(4)).
			Int64("distinct_customers", rep.Stats.DistinctCustomers).
			Int64("distinct_products", rep.Stats.DistinctProducts), nil
	})
	return rep, err
}

// TableCount is the row count of one warehouse table.
type TableCount struct {
	Table string
	Rows  int64
}

// TableCounts returns the row count of every star schema table.
func (p *Pipeline) TableCounts(ctx context.Context) ([]TableCount, error) {
	var out []TableCount
	err := p.step(ctx, StageCountWarehouse, func() (*zerolog.Event, error) {
		for _, t := range StarSchema() {
			n, err := p.Repo.CountRows(ctx, t.Name)
			if err != nil {
				return nil, fmt.Errorf("count %s: %w", t.Name, err)
			}
			out = append(out, TableCount{Table: t.Name, Rows: n})
		}
		return p.Logger.Debug().Int("tables", len(out)), nil
	})
	return out, err
}

func (p *Pipeline) dimensionLoader() *DimensionLoader {
	return &DimensionLoader{
		Repo:          p.Repo,
		Logger:        p.Logger,
		BatchSize:     p.Options.BatchSize,
		Transactional: p.Options.Transactional,
	}
}

// step runs fn as the named stage. fn returns the event carrying its result
// fields; step adds the stage name and duration and sends it. Failures are
// returned as a *StageError and logged only at debug; the caller reports them.
func (p *Pipeline) step(ctx context.Context, stage string, fn func() (*zerolog.Event, error)) error {
	if err := ctx.Err(); err != nil {
		return stageErr(stage, err)
	}

	start := time.Now()
	ev, err := fn()
	dur := time.Since(start).Truncate(time.Millisecond)

	if err != nil {
		if ev != nil {
			ev.Discard()
		}
		metrics.RecordStep(stage, "error", dur)
		err = stageErr(stage, err)
		p.Logger.Debug().
			Err(err).
			Str("stage", stage).
			Str("kind", string(KindOf(err))).
			Dur("duration", dur).
			Msg("stage failed")
		return err
	}

	metrics.RecordStep(stage, "ok", dur)
	if ev == nil {
		ev = p.Logger.Info()
	}
	ev.Str("stage", stage).Dur("duration", dur).Msg("stage ok")
	return nil
}
