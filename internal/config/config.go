// Package config builds the loader configuration from defaults, an optional
// config file and DWH_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"dwh/internal/readiness"
	"dwh/internal/source"
	"dwh/internal/storage"
)

// EnvPrefix prefixes every environment variable, e.g. DWH_SOURCE_HOST.
const EnvPrefix = "DWH"

// Endpoint addresses one database.
type Endpoint struct {
	Kind     string `mapstructure:"kind"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`

	// DSN, when set, is used verbatim instead of the parts above.
	DSN string `mapstructure:"dsn"`

	// Params are extra DSN query parameters in URL encoding, e.g.
	// "encrypt=true&app name=dwh". For the csv source they are parsing
	// options, e.g. "comma=;&lazy_quotes=true".
	Params string `mapstructure:"params"`

	// Path is the extract directory of the csv source.
	Path string `mapstructure:"path"`
}

type Runtime struct {
	BatchSize     int  `mapstructure:"batch_size"`
	Transactional bool `mapstructure:"transactional"`
	CreateSchema  bool `mapstructure:"create_schema"`
}

type Readiness struct {
	Attempts int           `mapstructure:"attempts"`
	Interval time.Duration `mapstructure:"interval"`
}

type Metrics struct {
	Backend        string   `mapstructure:"backend"`
	PushgatewayURL string   `mapstructure:"pushgateway_url"`
	Tags           []string `mapstructure:"tags"`
}

type Log struct {
	Format string `mapstructure:"format"`
}

// Config is built once at start and passed to every stage.
type Config struct {
	Job       string    `mapstructure:"job"`
	Source    Endpoint  `mapstructure:"source"`
	Warehouse Endpoint  `mapstructure:"warehouse"`
	Runtime   Runtime   `mapstructure:"runtime"`
	Readiness Readiness `mapstructure:"readiness"`
	Metrics   Metrics   `mapstructure:"metrics"`
	Log       Log       `mapstructure:"log"`
}

var defaults = map[string]any{
	"job": "dwh_sales",

	"source.kind":     "mssql",
	"source.host":     "localhost",
	"source.port":     "",
	"source.user":     "",
	"source.password": "",
	"source.database": "",
	"source.dsn":      "",
	"source.params":   "",
	"source.path":     "",

	"warehouse.kind":     "mssql",
	"warehouse.host":     "localhost",
	"warehouse.port":     "",
	"warehouse.user":     "",
	"warehouse.password": "",
	"warehouse.database": "",
	"warehouse.dsn":      "",
	"warehouse.params":   "",

	"runtime.batch_size":    1000,
	"runtime.transactional": true,
	"runtime.create_schema": false,

	"readiness.attempts": 30,
	"readiness.interval": "2s",

	"metrics.backend":         "none",
	"metrics.pushgateway_url": "http://localhost:9091",
	"metrics.tags":            []string{},

	"log.format": "console",
}

// Database names used when a server endpoint leaves database empty.
const (
	DefaultSourceDatabase    = "AdventureWorks2022"
	DefaultWarehouseDatabase = "SalesDW"
)

// defaultUsers are the per-kind logins used when user is empty. Ports are
// filled in by BuildDSN.
var defaultUsers = map[string]string{
	"postgres": "postgres",
	"mssql":    "sa",
}

// applyKindDefaults fills user and database for server kinds. SQLite keeps an
// empty database, which BuildDSN turns into dwh.db.
func (e *Endpoint) applyKindDefaults(database string) {
	user, server := defaultUsers[e.Kind]
	if !server {
		return
	}
	if e.User == "" {
		e.User = user
	}
	if strings.TrimSpace(e.Database) == "" {
		e.Database = database
	}
}

// New returns a viper instance with defaults and environment binding in place.
// Every default key is bound explicitly so Unmarshal sees environment values
// even when no config file mentions the key.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
		_ = v.BindEnv(k)
	}
	return v
}

// Load reads path (YAML, JSON or TOML by extension) when non-empty, then
// applies the environment over it.
func Load(path string) (Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes v into a Config.
func FromViper(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	c.Source.Kind = strings.ToLower(strings.TrimSpace(c.Source.Kind))
	c.Warehouse.Kind = strings.ToLower(strings.TrimSpace(c.Warehouse.Kind))
	c.Source.applyKindDefaults(DefaultSourceDatabase)
	c.Warehouse.applyKindDefaults(DefaultWarehouseDatabase)
	c.Metrics.Backend = strings.ToLower(strings.TrimSpace(c.Metrics.Backend))
	c.Metrics.Tags = splitTags(c.Metrics.Tags)
	return c, nil
}

// splitTags accepts both a list and a single comma-separated value, which is
// how DWH_METRICS_TAGS arrives.
func splitTags(in []string) []string {
	var out []string
	for _, s := range in {
		for _, t := range strings.Split(s, ",") {
			if t = strings.TrimSpace(t); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

// SourceConfig returns the source reader configuration.
func (c Config) SourceConfig() (source.Config, error) {
	if c.Source.Kind == "csv" {
		return source.Config{Kind: "csv", Path: c.Source.Path, Params: c.Source.Params}, nil
	}
	dsn, err := BuildDSN(c.Source)
	if err != nil {
		return source.Config{}, fmt.Errorf("source: %w", err)
	}
	return source.Config{Kind: c.Source.Kind, DSN: dsn}, nil
}

// WarehouseConfig returns the warehouse repository configuration.
func (c Config) WarehouseConfig() (storage.Config, error) {
	dsn, err := BuildDSN(c.Warehouse)
	if err != nil {
		return storage.Config{}, fmt.Errorf("warehouse: %w", err)
	}
	return storage.Config{Kind: c.Warehouse.Kind, DSN: dsn}, nil
}

// ReadinessPolicy returns the connection poll policy.
func (c Config) ReadinessPolicy() readiness.Policy {
	return readiness.Policy{Attempts: c.Readiness.Attempts, Interval: c.Readiness.Interval}
}
