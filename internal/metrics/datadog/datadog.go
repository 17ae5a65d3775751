// Package datadog implements a Datadog backend for the internal/metrics package.
//
// Observations are buffered in memory and submitted on Flush. A background
// loop flushes every FlushEvery so long loads produce a time series, and Close
// performs the final flush at process exit.
//
// Concurrency model:
//   - loader code can call IncCounter/ObserveHistogram at any time
//   - Flush snapshots and resets buffers under a mutex, then submits out-of-lock
//   - Close stops the loop; call it once
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"dwh/internal/metrics"
)

// Datadog metric names. Durations are published as percentile gauges under
// StepDuration + ".p50" and so on.
const (
	StepTotal    = "dwh.step.total"
	StepDuration = "dwh.step.duration_seconds"
	RecordsTotal = "dwh.records.total"
	BatchesTotal = "dwh.batches.total"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "dwh".
	JobName string

	// Tags are extra Datadog tags, e.g. []string{"env:prod", "team:data"}.
	Tags []string

	// FlushEvery defaults to 60 seconds.
	FlushEvery time.Duration

	// Test seams; production leaves them nil.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the part of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu  sync.Mutex
	buf snapshot
}

// snapshot is one collection window of buffered observations.
type snapshot struct {
	stepCounts      map[string]float64 // stepStatusKey -> count
	recordCounts    map[string]float64 // kind -> count
	batchCount      float64
	durationSamples map[string][]float64 // stepStatusKey -> seconds
}

func newSnapshot() snapshot {
	return snapshot{
		stepCounts:      make(map[string]float64),
		recordCounts:    make(map[string]float64),
		durationSamples: make(map[string][]float64),
	}
}

func (s snapshot) isEmpty() bool {
	return len(s.stepCounts) == 0 && len(s.recordCounts) == 0 && s.batchCount == 0 && len(s.durationSamples) == 0
}

// resolveEnvTag uses ENV, then DD_ENV, then "unknown".
func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client, which
// reads DD_API_KEY and DD_SITE from the environment. Network errors surface
// from Flush, not here.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "dwh"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
		buf:        newSnapshot(),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and flushes one last time.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.StepTotal:
		b.buf.stepCounts[stepStatusKey(labels["step"], labels["status"])] += delta
	case metrics.RecordsTotal:
		if kind := labels["kind"]; kind != "" {
			b.buf.recordCounts[kind] += delta
		}
	case metrics.BatchesTotal:
		b.buf.batchCount += delta
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 || name != metrics.StepDurationSeconds {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	k := stepStatusKey(labels["step"], labels["status"])
	b.buf.durationSamples[k] = append(b.buf.durationSamples[k], value)
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.buf
	b.buf = newSnapshot()
	return s
}

// Flush submits buffered metrics and resets the buffers, even when the
// submission fails. It returns nil when there is nothing to submit.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries turns a snapshot into Datadog series at one timestamp.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.stepCounts)+len(s.recordCounts)+6*len(s.durationSamples)+1)

	for k, v := range s.stepCounts {
		step, status := splitStepStatusKey(k)
		series = append(series, point(StepTotal, datadogV2.METRICINTAKETYPE_COUNT, v,
			withTags(b.baseTags, "step:"+step, "status:"+status), nowUnix))
	}

	for kind, v := range s.recordCounts {
		series = append(series, point(RecordsTotal, datadogV2.METRICINTAKETYPE_COUNT, v,
			withTags(b.baseTags, "kind:"+kind), nowUnix))
	}

	if s.batchCount != 0 {
		series = append(series, point(BatchesTotal, datadogV2.METRICINTAKETYPE_COUNT, s.batchCount, b.baseTags, nowUnix))
	}

	for k, samples := range s.durationSamples {
		step, status := splitStepStatusKey(k)
		addPercentiles(&series, StepDuration, samples, withTags(b.baseTags, "step:"+step, "status:"+status), nowUnix)
	}

	return series
}

// addPercentiles appends p50/p90/p95/p99/max/samples gauges. samples is not modified.
func addPercentiles(series *[]datadogV2.MetricSeries, prefix string, samples []float64, tags []string, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	gauge := datadogV2.METRICINTAKETYPE_GAUGE
	*series = append(*series,
		point(prefix+".p50", gauge, percentileNearestRank(cp, 0.50), tags, nowUnix),
		point(prefix+".p90", gauge, percentileNearestRank(cp, 0.90), tags, nowUnix),
		point(prefix+".p95", gauge, percentileNearestRank(cp, 0.95), tags, nowUnix),
		point(prefix+".p99", gauge, percentileNearestRank(cp, 0.99), tags, nowUnix),
		point(prefix+".max", gauge, cp[len(cp)-1], tags, nowUnix),
		point(prefix+".samples", gauge, float64(len(cp)), tags, nowUnix),
	)
}

func point(metric string, typ datadogV2.MetricIntakeType, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func stepStatusKey(step, status string) string {
	return step + "\x00" + status
}

func splitStepStatusKey(k string) (step, status string) {
	parts := strings.SplitN(k, "\x00", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return k, "unknown"
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

// percentileNearestRank expects s sorted ascending.
func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	return s[min(max(idx, 0), n-1)]
}

var _ metrics.Backend = (*Backend)(nil)
