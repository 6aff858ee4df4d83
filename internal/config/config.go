// Package config loads the service configuration from defaults, an optional
// config file, HOLMES_-prefixed environment variables, and runtime
// overrides, in ascending precedence.
package config

import (
	"time"
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Backend BackendConfig `mapstructure:"backend"`
	Jobs    JobsConfig    `mapstructure:"jobs"`
	Docs    DocsConfig    `mapstructure:"docs"`
	Debug   DebugConfig   `mapstructure:"debug"`
	Workers int           `mapstructure:"workers"`
}

// ServerConfig tunes the HTTP listener.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig selects log level and output profile.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// MetricsConfig toggles the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// HealthConfig toggles the health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AuthConfig holds the shared API token. Empty disables authentication.
type AuthConfig struct {
	Token string `mapstructure:"token"`
}

// BackendConfig selects and configures the backend adapter.
type BackendConfig struct {
	// Kind is "awx", "dns", or "pdns".
	Kind string     `mapstructure:"kind"`
	AWX  AWXConfig  `mapstructure:"awx"`
	DNS  DNSConfig  `mapstructure:"dns"`
	PDNS PDNSConfig `mapstructure:"pdns"`
}

// AWXConfig configures the automation controller adapter.
type AWXConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	VerifySSL      bool          `mapstructure:"verify_ssl"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
}

// DNSConfig configures the Technitium DNS server adapter.
type DNSConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Token          string        `mapstructure:"token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// PDNSConfig configures the PowerDNS authoritative server adapter.
type PDNSConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	ServerID       string        `mapstructure:"server_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// JobsConfig tunes the job store and workflow engine.
type JobsConfig struct {
	CacheDir     string        `mapstructure:"cache_dir"`
	Retention    time.Duration `mapstructure:"retention"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"`
	CatalogPath  string        `mapstructure:"catalog_path"`
}

// DocsConfig points at the operations document change notes append to.
type DocsConfig struct {
	Path string `mapstructure:"path"`
}

// DebugConfig toggles development helpers.
type DebugConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}
