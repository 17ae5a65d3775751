package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"dwh/internal/metrics"
)

type gateway struct {
	mu     sync.Mutex
	method string
	path   string
	body   int
	status int
}

func (g *gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, _ := io.ReadAll(r.Body)
	g.method, g.path, g.body = r.Method, r.URL.Path, len(b)
	if g.status != 0 {
		w.WriteHeader(g.status)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func TestBackend_RecordsKnownMetrics(t *testing.T) {
	b, err := NewBackend("", "http://127.0.0.1:1")
	require.NoError(t, err)

	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "load_facts", "status": "ok"})
	b.IncCounter(metrics.RecordsTotal, 60398, metrics.Labels{"kind": "fact_loaded"})
	b.IncCounter(metrics.RecordsTotal, 2, metrics.Labels{})
	b.IncCounter(metrics.BatchesTotal, 61, nil)
	b.IncCounter(metrics.BatchesTotal, -1, nil)
	b.IncCounter("unknown_total", 1, nil)
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.25, metrics.Labels{"step": "load_facts", "status": "ok"})
	b.ObserveHistogram(metrics.StepDurationSeconds, -1, metrics.Labels{"step": "load_facts", "status": "ok"})

	require.Equal(t, 1.0, testutil.ToFloat64(b.steps.WithLabelValues("load_facts", "ok")))
	require.Equal(t, 60398.0, testutil.ToFloat64(b.records.WithLabelValues("fact_loaded")))
	require.Equal(t, 1, testutil.CollectAndCount(b.records))
	require.Equal(t, 61.0, testutil.ToFloat64(b.batches))
	require.Equal(t, 1, testutil.CollectAndCount(b.durations))
}

func TestBackend_FlushPushesJobGroup(t *testing.T) {
	gw := &gateway{}
	srv := httptest.NewServer(gw)
	defer srv.Close()

	b, err := NewBackend("nightly", srv.URL, "env:test")
	require.NoError(t, err)
	b.IncCounter(metrics.BatchesTotal, 1, nil)

	require.NoError(t, b.Flush())

	gw.mu.Lock()
	defer gw.mu.Unlock()
	require.Equal(t, http.MethodPut, gw.method)
	require.Equal(t, "/metrics/job/nightly/env/test", gw.path)
	require.Positive(t, gw.body)
}

func TestBackend_FlushReportsGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(&gateway{status: http.StatusInternalServerError})
	defer srv.Close()

	b, err := NewBackend("dwh", srv.URL)
	require.NoError(t, err)
	err = b.Flush()
	require.Error(t, err)
	require.Contains(t, err.Error(), "prompush")
}

func TestNewBackend_RejectsBadInput(t *testing.T) {
	_, err := NewBackend("dwh", " ")
	require.Error(t, err)

	_, err = NewBackend("dwh", "http://gw:9091", "no-separator")
	require.Error(t, err)
}
