package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	customersCSV = `customer_id,first_name,middle_name,last_name,address_line1,address_line2,email_address,city,state_province,country_region
1,Jon,,Yang,3761 N. 14th St,,jon24@adventure-works.com,Rockhampton,Queensland,Australia
2,Eugene,L,Huang,2243 W St.,Apt 3,eugene10@adventure-works.com,Seaford,Victoria,Australia
`
	productsCSV = `product_id,name,color,size,subcategory_name,category_name
10,Mountain-100 Silver,Silver,38,Mountain Bikes,Bikes
11,Sport-100 Helmet,Red,,Helmets,Accessories
`
	salesCSV = `order_qty,unit_price,unit_price_discount,due_date,customer_id,product_id
2,5.00,0,2024-01-15,1,10
1,20.00,0.5,2024-02-01,2,11
1,3.00,0,2024-03-01,99,10
`
)

// setupEnv points the loader at a CSV extract directory and a file-backed
// SQLite warehouse and returns the warehouse path.
func setupEnv(t *testing.T, createSchema bool) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range map[string]string{
		"customers.csv": customersCSV,
		"products.csv":  productsCSV,
		"sales.csv":     salesCSV,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	db := filepath.Join(t.TempDir(), "dw.db")
	t.Setenv("DWH_SOURCE_KIND", "csv")
	t.Setenv("DWH_SOURCE_PATH", dir)
	t.Setenv("DWH_WAREHOUSE_KIND", "sqlite")
	t.Setenv("DWH_WAREHOUSE_DSN", "file:"+db+"?_pragma=foreign_keys(1)")
	t.Setenv("DWH_READINESS_ATTEMPTS", "1")
	t.Setenv("DWH_METRICS_BACKEND", "none")
	t.Setenv("DWH_LOG_FORMAT", "json")
	if createSchema {
		t.Setenv("DWH_RUNTIME_CREATE_SCHEMA", "true")
	} else {
		t.Setenv("DWH_RUNTIME_CREATE_SCHEMA", "false")
	}
	return db
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_LoadsWarehouseAndPrintsSummary(t *testing.T) {
	setupEnv(t, true)

	want := "Customers=2 Products=2 Dates=3 InternetSales=2 skipped=1 amount=20.0000 distinct_customers=2 distinct_products=2\n"

	code, stdout, stderr := runCLI(t, "run")
	require.Equal(t, 0, code, stderr)
	require.Equal(t, want, stdout)
	require.Contains(t, stderr, "run complete")
	require.Contains(t, stderr, "1 of 3 sales lines skipped")

	// A second run reloads to the same state.
	code, stdout, stderr = runCLI(t, "run")
	require.Equal(t, 0, code, stderr)
	require.Equal(t, want, stdout)
}

func TestEntryPoints_RunIndependently(t *testing.T) {
	setupEnv(t, false)

	code, stdout, stderr := runCLI(t, "schema")
	require.Equal(t, 0, code, stderr)
	require.Equal(t, "Customers\t0\nProducts\t0\nDates\t0\nInternetSales\t0\n", stdout)

	code, _, stderr = runCLI(t, "load-dimensions")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stderr, "dimensions loaded")

	code, _, stderr = runCLI(t, "load-facts")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stderr, "missing_customer")

	code, _, stderr = runCLI(t, "wait")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stderr, "source and warehouse ready")
}

func TestLoadFacts_MissingSchemaFails(t *testing.T) {
	setupEnv(t, false)

	code, _, stderr := runCLI(t, "load-facts")
	require.Equal(t, 1, code)
	require.Contains(t, stderr, `"kind":"SCHEMA"`)
	require.Contains(t, stderr, `"stage":"build_lookups"`)
	require.Equal(t, 1, strings.Count(stderr, `"level":"error"`), stderr)
}

func TestValidate(t *testing.T) {
	setupEnv(t, false)

	code, stdout, stderr := runCLI(t, "validate")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stdout, "configuration ok")

	t.Setenv("DWH_WAREHOUSE_KIND", "oracle")
	t.Setenv("DWH_RUNTIME_BATCH_SIZE", "0")
	code, stdout, stderr = runCLI(t, "validate")
	require.Equal(t, 1, code)
	require.Contains(t, stdout, "warehouse.kind")
	require.Contains(t, stdout, "runtime.batch_size")
	require.Contains(t, stderr, "invalid configuration")
}

func TestInvalidConfigStopsLoad(t *testing.T) {
	setupEnv(t, true)
	t.Setenv("DWH_METRICS_BACKEND", "statsd")

	code, stdout, stderr := runCLI(t, "run")
	require.Equal(t, 1, code)
	require.Empty(t, stdout)
	require.Contains(t, stderr, "metrics.backend")
	require.Contains(t, stderr, `"kind":"INTERNAL"`)
}

func TestMissingConfigFile(t *testing.T) {
	setupEnv(t, true)

	code, _, stderr := runCLI(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "run")
	require.Equal(t, 1, code)
	require.True(t, strings.Contains(stderr, "read config"), stderr)
}

func TestConfigFileIsRead(t *testing.T) {
	setupEnv(t, true)
	os.Unsetenv("DWH_LOG_FORMAT")

	cfg := filepath.Join(t.TempDir(), "dwh.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("job: nightly\nlog:\n  format: json\n"), 0o644))

	code, _, stderr := runCLI(t, "--config", cfg, "-v", "wait")
	require.Equal(t, 0, code, stderr)
	require.Contains(t, stderr, `"job":"nightly"`)
	require.Contains(t, stderr, `"level":"debug"`)
}

func TestPushgatewayReceivesMetricsAtExit(t *testing.T) {
	setupEnv(t, true)

	var (
		mu    sync.Mutex
		paths []string
	)
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	t.Setenv("DWH_METRICS_BACKEND", "pushgateway")
	t.Setenv("DWH_METRICS_PUSHGATEWAY_URL", gw.URL)

	code, _, stderr := runCLI(t, "run")
	require.Equal(t, 0, code, stderr)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"PUT /metrics/job/dwh_sales"}, paths)
}
