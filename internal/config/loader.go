package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const envPrefix = "HOLMES"

var (
	configMu  sync.RWMutex
	appConfig *Config
)

// envAliases maps short environment variable names onto nested config keys.
// The full HOLMES_SECTION_KEY form also works via the automatic replacer.
// An alias must never reuse the name of a parent key's namespace: a variable
// like HOLMES_BACKEND would shadow the whole backend subtree in viper, so
// backend selection stays on the long form HOLMES_BACKEND_KIND.
var envAliases = map[string]string{
	"server.port":           "HOLMES_PORT",
	"server.host":           "HOLMES_HOST",
	"logging.level":         "HOLMES_LOG_LEVEL",
	"auth.token":            "HOLMES_TOKEN",
	"metrics.enabled":       "HOLMES_METRICS_ENABLED",
	"jobs.cache_dir":        "HOLMES_JOB_CACHE_DIR",
	"jobs.retention":        "HOLMES_JOB_RETENTION",
	"backend.awx.base_url":  "HOLMES_AWX_URL",
	"backend.awx.username":  "HOLMES_AWX_USERNAME",
	"backend.awx.password":  "HOLMES_AWX_PASSWORD",
	"backend.dns.base_url":  "HOLMES_DNS_URL",
	"backend.dns.token":     "HOLMES_DNS_TOKEN",
	"backend.pdns.base_url": "HOLMES_PDNS_URL",
	"backend.pdns.api_key":  "HOLMES_PDNS_API_KEY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("health.enabled", true)

	v.SetDefault("auth.token", "")

	v.SetDefault("backend.kind", "awx")
	v.SetDefault("backend.awx.verify_ssl", true)
	v.SetDefault("backend.awx.request_timeout", "30s")
	v.SetDefault("backend.awx.rate_limit", 10.0)
	v.SetDefault("backend.dns.request_timeout", "15s")
	v.SetDefault("backend.pdns.server_id", "localhost")
	v.SetDefault("backend.pdns.request_timeout", "15s")

	v.SetDefault("jobs.retention", "60m")
	v.SetDefault("jobs.poll_interval", "5s")
	v.SetDefault("jobs.poll_timeout", "1h")

	v.SetDefault("workers", 4)

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)
}

// Load builds the configuration and installs it as the process config.
// Runtime overrides take precedence over environment variables, which take
// precedence over file values and defaults.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("holmes-agent")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".holmes-agent"))
	}
	v.AddConfigPath("/etc/holmes-agent")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, envVar := range envAliases {
		if err := v.BindEnv(key, envVar); err != nil {
			return nil, fmt.Errorf("bind %s: %w", envVar, err)
		}
	}

	for _, override := range overrides {
		for key, value := range flatten("", override) {
			v.Set(key, value)
		}
	}

	cfg := &Config{}
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Jobs.CacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir for job cache: %w", err)
		}
		cfg.Jobs.CacheDir = filepath.Join(home, ".holmes-agent", "jobs")
	}

	configMu.Lock()
	appConfig = cfg
	configMu.Unlock()
	return cfg, nil
}

// GetConfig returns the most recently loaded configuration, or nil.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// flatten converts nested override maps to dotted viper keys.
func flatten(prefix string, in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			for k, v := range flatten(full, nested) {
				out[k] = v
			}
			continue
		}
		out[full] = value
	}
	return out
}
