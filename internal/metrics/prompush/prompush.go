// Package prompush publishes loader metrics to a Prometheus Pushgateway.
//
// A batch job does not live long enough to be scraped, so observations are
// kept in a private registry and pushed on Flush.
package prompush

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"dwh/internal/metrics"
)

// Backend implements metrics.Backend and metrics.Flusher.
type Backend struct {
	pusher *push.Pusher

	steps     *prometheus.CounterVec
	durations *prometheus.HistogramVec
	records   *prometheus.CounterVec
	batches   prometheus.Counter
}

// NewBackend builds a backend pushing to url under the given job name.
// Grouping labels are "key:value" strings, the same form as Datadog tags.
func NewBackend(job, url string, grouping ...string) (*Backend, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("prompush: pushgateway url is empty")
	}
	if job == "" {
		job = "dwh"
	}

	b := &Backend{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Pipeline stages run, by outcome.",
		}, []string{"step", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.StepDurationSeconds,
			Help:    "Pipeline stage wall time.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"step", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Rows written or skipped, by kind.",
		}, []string{"kind"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Insert batches executed.",
		}),
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(b.steps, b.durations, b.records, b.batches)

	p := push.New(url, job).Gatherer(reg)
	for _, g := range grouping {
		k, v, ok := strings.Cut(g, ":")
		if !ok || k == "" {
			return nil, fmt.Errorf("prompush: invalid grouping label %q: want key:value", g)
		}
		p = p.Grouping(k, v)
	}
	b.pusher = p
	return b, nil
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	switch name {
	case metrics.StepTotal:
		b.steps.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case metrics.RecordsTotal:
		if kind := labels["kind"]; kind != "" {
			b.records.WithLabelValues(kind).Add(delta)
		}
	case metrics.BatchesTotal:
		b.batches.Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 || name != metrics.StepDurationSeconds {
		return
	}
	b.durations.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// pushTimeout bounds one push to the gateway.
const pushTimeout = 10 * time.Second

// Flush replaces the job's metric group on the gateway.
func (b *Backend) Flush() error {
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := b.pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("prompush: %w", err)
	}
	return nil
}
