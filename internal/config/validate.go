package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is the dotted config key.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

var (
	sourceKinds    = []string{"postgres", "mssql", "sqlite", "csv"}
	warehouseKinds = []string{"postgres", "mssql", "sqlite"}
	metricBackends = []string{"none", "datadog", "pushgateway"}
	logFormats     = []string{"console", "json"}
)

// Validate checks c and returns every issue found. The configuration is
// usable when no issue has SeverityError.
func Validate(c Config) []Issue {
	var issues []Issue
	add := func(sev Severity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.Job) == "" {
		add(SeverityError, "job", "must not be empty")
	}

	if !slices.Contains(sourceKinds, c.Source.Kind) {
		add(SeverityError, "source.kind", "must be one of %s, got %q", strings.Join(sourceKinds, ", "), c.Source.Kind)
	} else if c.Source.Kind == "csv" {
		if strings.TrimSpace(c.Source.Path) == "" {
			add(SeverityError, "source.path", "is required for source.kind=csv")
		}
	} else {
		validateEndpoint("source", c.Source, add)
	}

	if !slices.Contains(warehouseKinds, c.Warehouse.Kind) {
		add(SeverityError, "warehouse.kind", "must be one of %s, got %q", strings.Join(warehouseKinds, ", "), c.Warehouse.Kind)
	} else {
		validateEndpoint("warehouse", c.Warehouse, add)
	}

	if c.Runtime.BatchSize <= 0 {
		add(SeverityError, "runtime.batch_size", "must be > 0, got %d", c.Runtime.BatchSize)
	}
	if !c.Runtime.Transactional {
		add(SeverityWarning, "runtime.transactional", "disabled: an interrupted stage can leave a table empty")
	}

	if c.Readiness.Attempts < 1 {
		add(SeverityError, "readiness.attempts", "must be >= 1, got %d", c.Readiness.Attempts)
	}
	if c.Readiness.Interval < 0 {
		add(SeverityError, "readiness.interval", "must not be negative, got %s", c.Readiness.Interval)
	}

	if !slices.Contains(metricBackends, c.Metrics.Backend) {
		add(SeverityError, "metrics.backend", "must be one of %s, got %q", strings.Join(metricBackends, ", "), c.Metrics.Backend)
	}
	if c.Metrics.Backend == "pushgateway" {
		if u, err := url.Parse(c.Metrics.PushgatewayURL); err != nil || u.Scheme == "" || u.Host == "" {
			add(SeverityError, "metrics.pushgateway_url", "must be an absolute URL, got %q", c.Metrics.PushgatewayURL)
		}
	}

	if !slices.Contains(logFormats, c.Log.Format) {
		add(SeverityError, "log.format", "must be one of %s, got %q", strings.Join(logFormats, ", "), c.Log.Format)
	}

	return issues
}

func validateEndpoint(prefix string, e Endpoint, add func(Severity, string, string, ...any)) {
	if strings.TrimSpace(e.DSN) != "" {
		return
	}
	if e.Kind == "sqlite" {
		if strings.TrimSpace(e.Database) == "" {
			add(SeverityWarning, prefix+".database", "empty: defaulting to dwh.db")
		}
		return
	}
	if strings.TrimSpace(e.Host) == "" {
		add(SeverityError, prefix+".host", "is required when %s.dsn is empty", prefix)
	}
	if strings.TrimSpace(e.Database) == "" {
		add(SeverityError, prefix+".database", "is required when %s.dsn is empty", prefix)
	}
	if e.Password == "" {
		add(SeverityWarning, prefix+".password", "is empty")
	}
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}
