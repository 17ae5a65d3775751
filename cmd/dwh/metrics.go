package main

import (
	"context"

	"github.com/rs/zerolog"

	"dwh/internal/config"
	"dwh/internal/metrics"
	"dwh/internal/metrics/datadog"
	"dwh/internal/metrics/prompush"
)

// setupMetrics installs the configured backend and returns the function that
// flushes and detaches it. A backend that fails to start leaves metrics off;
// metrics never fail a load.
func setupMetrics(ctx context.Context, cfg config.Config, logger zerolog.Logger) func() {
	l := logger.With().Str("component", "metrics").Str("backend", cfg.Metrics.Backend).Logger()

	switch cfg.Metrics.Backend {
	case "pushgateway":
		b, err := prompush.NewBackend(cfg.Job, cfg.Metrics.PushgatewayURL, cfg.Metrics.Tags...)
		if err != nil {
			l.Warn().Err(err).Msg("metrics disabled")
			return func() {}
		}
		metrics.SetBackend(b)
		l.Debug().Str("url", cfg.Metrics.PushgatewayURL).Msg("metrics enabled")
		return func() {
			if err := metrics.Flush(); err != nil {
				l.Warn().Err(err).Msg("metrics flush failed")
			}
			metrics.SetBackend(nil)
		}

	case "datadog":
		// The client reads DD_API_KEY and DD_SITE from the environment.
		b, err := datadog.NewBackend(context.WithoutCancel(ctx), datadog.Options{
			JobName: cfg.Job,
			Tags:    cfg.Metrics.Tags,
		})
		if err != nil {
			l.Warn().Err(err).Msg("metrics disabled")
			return func() {}
		}
		metrics.SetBackend(b)
		l.Debug().Strs("tags", cfg.Metrics.Tags).Msg("metrics enabled")
		return func() {
			if err := b.Close(); err != nil {
				l.Warn().Err(err).Msg("metrics flush failed")
			}
			metrics.SetBackend(nil)
		}

	default:
		return func() {}
	}
}
