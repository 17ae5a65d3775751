package warehouse

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"dwh/internal/config"
	"dwh/internal/readiness"
	"dwh/internal/source"
	"dwh/internal/storage"
)

// Runner is the entry point layer. Each method opens its own source and
// warehouse connections, waits for them to answer, runs its stages and closes
// the connections before returning.
type Runner struct {
	OpenSource     func(ctx context.Context, cfg source.Config) (source.Reader, error)
	OpenRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
	Logger         zerolog.Logger
}

// NewDefaultRunner opens connections through the source and storage registries.
// The caller must link the backends it needs (see the all packages).
func NewDefaultRunner(logger zerolog.Logger) *Runner {
	return &Runner{
		OpenSource:     source.Open,
		OpenRepository: storage.New,
		Logger:         logger,
	}
}

// LoadDimensions reloads the Products, Customers and Dates dimensions.
func (r *Runner) LoadDimensions(ctx context.Context, cfg config.Config) (DimensionReport, error) {
	var rep DimensionReport
	err := r.session(ctx, cfg, true, func(p *Pipeline) error {
		var err error
		rep, err = p.LoadDimensions(ctx)
		return err
	})
	return rep, err
}

// LoadFacts rebuilds the key lookups and reloads InternetSales.
func (r *Runner) LoadFacts(ctx context.Context, cfg config.Config) (FactReport, error) {
	var rep FactReport
	err := r.session(ctx, cfg, true, func(p *Pipeline) error {
		var err error
		rep, err = p.LoadFacts(ctx)
		return err
	})
	return rep, err
}

// Run loads dimensions, then facts, then counts every warehouse table.
func (r *Runner) Run(ctx context.Context, cfg config.Config) (Summary, error) {
	sum := Summary{Job: cfg.Job}

	var err error
	if sum.Dimensions, err = r.LoadDimensions(ctx, cfg); err != nil {
		return sum, err
	}
	if sum.Facts, err = r.LoadFacts(ctx, cfg); err != nil {
		return sum, err
	}
	sum.Counts, err = r.TableCounts(ctx, cfg)
	return sum, err
}

// TableCounts returns the current row count of every star schema table.
func (r *Runner) TableCounts(ctx context.Context, cfg config.Config) ([]TableCount, error) {
	var out []TableCount
	err := r.session(ctx, cfg, false, func(p *Pipeline) error {
		var err error
		out, err = p.TableCounts(ctx)
		return err
	})
	return out, err
}

// EnsureSchema creates missing star schema tables in the warehouse.
func (r *Runner) EnsureSchema(ctx context.Context, cfg config.Config) error {
	return r.session(ctx, cfg, false, func(p *Pipeline) error {
		return p.EnsureSchema(ctx)
	})
}

// Wait polls the source and the warehouse until both accept connections.
func (r *Runner) Wait(ctx context.Context, cfg config.Config) error {
	return r.session(ctx, cfg, true, func(*Pipeline) error { return nil })
}

// session connects, runs fn and releases both connections. withSource=false
// skips the source for warehouse-only work.
func (r *Runner) session(ctx context.Context, cfg config.Config, withSource bool, fn func(*Pipeline) error) error {
	p := &Pipeline{
		Logger: r.Logger,
		Options: Options{
			BatchSize:     cfg.Runtime.BatchSize,
			Transactional: cfg.Runtime.Transactional,
			CreateSchema:  cfg.Runtime.CreateSchema,
		},
	}

	if withSource {
		src, err := r.connectSource(ctx, cfg)
		if err != nil {
			return stageErr(StageConnect, err)
		}
		defer func() {
			if cerr := src.Close(); cerr != nil {
				r.Logger.Warn().Err(cerr).Msg("close source")
			}
		}()
		p.Source = src
	}

	repo, err := r.connectWarehouse(ctx, cfg)
	if err != nil {
		return stageErr(StageConnect, err)
	}
	defer repo.Close()
	p.Repo = repo

	return fn(p)
}

func (r *Runner) connectSource(ctx context.Context, cfg config.Config) (source.Reader, error) {
	scfg, err := cfg.SourceConfig()
	if err != nil {
		return nil, err
	}

	var rd source.Reader
	err = readiness.Poll(ctx, cfg.ReadinessPolicy(), "source "+scfg.Kind, func(ctx context.Context) error {
		c, err := r.OpenSource(ctx, scfg)
		if err != nil {
			return err
		}
		if err := c.Ping(ctx); err != nil {
			_ = c.Close()
			return err
		}
		rd = c
		return nil
	}, r.notify("source"))
	if err != nil {
		return nil, err
	}
	r.Logger.Debug().Str("kind", scfg.Kind).Msg("source ready")
	return rd, nil
}

func (r *Runner) connectWarehouse(ctx context.Context, cfg config.Config) (storage.Repository, error) {
	wcfg, err := cfg.WarehouseConfig()
	if err != nil {
		return nil, err
	}

	var repo storage.Repository
	err = readiness.Poll(ctx, cfg.ReadinessPolicy(), "warehouse "+wcfg.Kind, func(ctx context.Context) error {
		c, err := r.OpenRepository(ctx, wcfg)
		if err != nil {
			return err
		}
		if err := c.Ping(ctx); err != nil {
			c.Close()
			return err
		}
		repo = c
		return nil
	}, r.notify("warehouse"))
	if err != nil {
		return nil, err
	}
	r.Logger.Debug().Str("kind", wcfg.Kind).Msg("warehouse ready")
	return repo, nil
}

func (r *Runner) notify(target string) readiness.Notify {
	return func(attempt int, err error, next time.Duration) {
		r.Logger.Info().
			Str("target", target).
			Int("attempt", attempt).
			Dur("retry_in", next).
			Err(err).
			Msg("waiting for database")
	}
}

