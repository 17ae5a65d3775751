package warehouse

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"dwh/internal/config"
	"dwh/internal/readiness"
	"dwh/internal/source"
	"dwh/internal/storage"
)

func testConfig(warehouseDSN string) config.Config {
	return config.Config{
		Job:       "test",
		Source:    config.Endpoint{Kind: "postgres", DSN: "postgres://oltp"},
		Warehouse: config.Endpoint{Kind: "sqlite", DSN: warehouseDSN},
		Runtime:   config.Runtime{BatchSize: 1000, Transactional: true, CreateSchema: true},
		Readiness: config.Readiness{Attempts: 3, Interval: time.Millisecond},
	}
}

func TestRunner_RunOpensAndClosesPerEntryPoint(t *testing.T) {
	ctx := context.Background()
	wh := newTestWarehouse(t, false)
	src := bigSource()

	var opened []source.Config
	var logs bytes.Buffer
	r := NewDefaultRunner(zerolog.New(&logs))
	r.OpenSource = func(_ context.Context, cfg source.Config) (source.Reader, error) {
		opened = append(opened, cfg)
		return src, nil
	}

	sum, err := r.Run(ctx, testConfig(wh.DSN))
	require.NoError(t, err)

	require.Len(t, opened, 2, "load-dimensions and load-facts each open the source")
	require.Equal(t, 2, src.closed)
	require.Equal(t, source.Config{Kind: "postgres", DSN: "postgres://oltp"}, opened[0])

	require.Equal(t, DimensionReport{Products: 3, Customers: 3, Dates: 4}, sum.Dimensions)
	require.EqualValues(t, 5, sum.Facts.Inserted)
	require.Equal(t, []TableCount{
		{Table: TableCustomers, Rows: 3},
		{Table: TableProducts, Rows: 3},
		{Table: TableDates, Rows: 4},
		{Table: TableInternetSales, Rows: 5},
	}, sum.Counts)

	out := logs.String()
	for _, stage := range []string{StageSchema, StageLoadProducts, StageLoadCustomers, StageLoadDates, StageBuildLookups, StageLoadFacts, StageCountWarehouse} {
		require.Contains(t, out, `"stage":"`+stage+`"`)
	}
	require.Contains(t, out, `"level":"warn"`, "skips are reported at warn")
}

func TestRunner_EntryPointsAreIndependent(t *testing.T) {
	ctx := context.Background()
	wh := newTestWarehouse(t, true)
	r := NewDefaultRunner(zerolog.Nop())
	r.OpenSource = func(context.Context, source.Config) (source.Reader, error) { return scenarioSource(), nil }
	cfg := testConfig(wh.DSN)
	cfg.Runtime.CreateSchema = false

	dims, err := r.LoadDimensions(ctx, cfg)
	require.NoError(t, err)
	require.Equal(t, DimensionReport{Products: 1, Customers: 1, Dates: 1}, dims)

	facts, err := r.LoadFacts(ctx, cfg)
	require.NoError(t, err)
	require.EqualValues(t, 1, facts.Inserted)

	// A second fact load on its own gives the same result.
	facts, err = r.LoadFacts(ctx, cfg)
	require.NoError(t, err)
	require.EqualValues(t, 1, facts.Stats.Rows)
	require.Equal(t, "10.0000", facts.Stats.AmountSum.StringFixed(4))
}

func TestRunner_UnreachableSourceIsConnectivity(t *testing.T) {
	ctx := context.Background()
	wh := newTestWarehouse(t, true)

	attempts := 0
	r := NewDefaultRunner(zerolog.Nop())
	r.OpenSource = func(context.Context, source.Config) (source.Reader, error) {
		attempts++
		return nil, errors.New("dial tcp: connection refused")
	}

	_, err := r.LoadDimensions(ctx, testConfig(wh.DSN))
	require.Error(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, KindConnectivity, KindOf(err))
	require.Equal(t, StageConnect, StageOf(err))
	require.ErrorIs(t, err, readiness.ErrNotReady)
	require.ErrorContains(t, err, "connection refused")
}

func TestRunner_WaitRetriesUntilPingSucceeds(t *testing.T) {
	ctx := context.Background()
	wh := newTestWarehouse(t, true)

	var readers []*fakeSource
	r := NewDefaultRunner(zerolog.Nop())
	r.OpenSource = func(context.Context, source.Config) (source.Reader, error) {
		f := &fakeSource{}
		if len(readers) == 0 {
			f.pingErr = errors.New("starting up")
		}
		readers = append(readers, f)
		return f, nil
	}

	require.NoError(t, r.Wait(ctx, testConfig(wh.DSN)))
	require.Len(t, readers, 2)
	require.Equal(t, 1, readers[0].closed, "a reader that failed ping is closed")
	require.Equal(t, 1, readers[1].closed, "the ready reader is closed when Wait returns")
}

func TestRunner_UnreachableWarehouse(t *testing.T) {
	ctx := context.Background()

	r := NewDefaultRunner(zerolog.Nop())
	r.OpenSource = func(context.Context, source.Config) (source.Reader, error) { return &fakeSource{}, nil }
	r.OpenRepository = func(context.Context, storage.Config) (storage.Repository, error) {
		return nil, errors.New("login failed")
	}

	err := r.EnsureSchema(ctx, testConfig("unused"))
	require.Equal(t, KindConnectivity, KindOf(err))
	require.True(t, strings.HasPrefix(err.Error(), "[CONNECTIVITY] stage connect: warehouse sqlite"), err.Error())
}

func TestRunner_BadConfigIsInternal(t *testing.T) {
	cfg := testConfig("")
	cfg.Source = config.Endpoint{Kind: "oracle"}

	err := NewDefaultRunner(zerolog.Nop()).Wait(context.Background(), cfg)
	require.Equal(t, KindInternal, KindOf(err))
	require.Equal(t, StageConnect, StageOf(err))
}
