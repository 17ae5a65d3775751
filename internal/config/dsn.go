package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Default server ports, used when Endpoint.Port is empty.
const (
	DefaultPostgresPort = "5432"
	DefaultMSSQLPort    = "1433"
)

// BuildDSN returns e.DSN when set, otherwise a DSN assembled from the parts
// for e.Kind.
func BuildDSN(e Endpoint) (string, error) {
	if dsn := strings.TrimSpace(e.DSN); dsn != "" {
		return dsn, nil
	}
	switch e.Kind {
	case "postgres":
		return buildPostgresDSN(e), nil
	case "mssql":
		return buildMSSQLDSN(e), nil
	case "sqlite":
		return buildSQLiteDSN(e.Database, e.Params), nil
	default:
		return "", fmt.Errorf("cannot build a DSN for kind %q", e.Kind)
	}
}

// buildPostgresDSN builds a postgresql:// URL. sslmode defaults to disable.
func buildPostgresDSN(e Endpoint) string {
	port := e.Port
	if port == "" {
		port = DefaultPostgresPort
	}
	u := &url.URL{
		Scheme: "postgresql",
		User:   url.UserPassword(e.User, e.Password),
		Host:   e.Host + ":" + port,
		Path:   "/" + e.Database,
	}
	q := url.Values{}
	appendRawParams(q, e.Params)
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// buildMSSQLDSN builds a sqlserver:// URL with the database as a query
// parameter, which is what go-mssqldb expects.
func buildMSSQLDSN(e Endpoint) string {
	port := e.Port
	if port == "" {
		port = DefaultMSSQLPort
	}
	u := &url.URL{
		Scheme: "sqlserver",
		User:   url.UserPassword(e.User, e.Password),
		Host:   e.Host + ":" + port,
	}
	q := url.Values{}
	q.Set("database", e.Database)
	appendRawParams(q, e.Params)
	if q.Get("encrypt") == "" {
		q.Set("encrypt", "disable")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// buildSQLiteDSN treats base as a path unless it already looks like a DSN
// ("file:dwh.db?...", ":memory:").
func buildSQLiteDSN(base, params string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "dwh.db"
	}
	if !strings.Contains(base, ":") {
		base = "file:" + base
	}
	if params == "" {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + params
}

// appendRawParams adds URL-encoded k=v pairs to q. A malformed fragment is
// ignored.
func appendRawParams(q url.Values, raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	parsed, err := url.ParseQuery(raw)
	if err != nil {
		return
	}
	for k, vals := range parsed {
		if strings.TrimSpace(k) == "" {
			continue
		}
		for _, v := range vals {
			q.Add(k, v)
		}
	}
}
