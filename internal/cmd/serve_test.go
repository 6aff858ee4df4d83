package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakerstreetlabs/holmes-agent/internal/config"
	"github.com/bakerstreetlabs/holmes-agent/internal/observability"
	"github.com/bakerstreetlabs/holmes-agent/pkg/adapter"
	"github.com/bakerstreetlabs/holmes-agent/pkg/job"
)

func TestCacheHealthChecker(t *testing.T) {
	t.Run("nil store fails", func(t *testing.T) {
		err := cacheHealthChecker{}.CheckHealth(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not initialized")
	})

	t.Run("open store passes", func(t *testing.T) {
		store, err := job.NewStore(job.StoreConfig{CacheDir: t.TempDir()}, nil)
		require.NoError(t, err)

		assert.NoError(t, cacheHealthChecker{store: store}.CheckHealth(context.Background()))
	})
}

func TestTelemetryHealthChecker(t *testing.T) {
	t.Run("disabled metrics always pass", func(t *testing.T) {
		checker := telemetryHealthChecker{enabled: false}
		assert.NoError(t, checker.CheckHealth(context.Background()))
	})

	t.Run("enabled but uninitialized fails", func(t *testing.T) {
		origTelemetry := observability.TelemetrySystem
		origExporter := observability.PrometheusExporter
		defer func() {
			observability.TelemetrySystem = origTelemetry
			observability.PrometheusExporter = origExporter
		}()

		observability.TelemetrySystem = nil
		observability.PrometheusExporter = nil

		checker := telemetryHealthChecker{enabled: true}
		err := checker.CheckHealth(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "telemetry system not initialized")
	})
}

func TestIdentityHealthChecker(t *testing.T) {
	tests := []struct {
		name       string
		binaryName string
		envPrefix  string
		configName string
		wantErr    string
	}{
		{"all fields valid", "holmes-agent", "HOLMES", "holmes-agent", ""},
		{"missing binary name", "", "HOLMES", "holmes-agent", "missing binary name"},
		{"missing env prefix", "holmes-agent", "", "holmes-agent", "missing env prefix"},
		{"missing config name", "holmes-agent", "HOLMES", "", "missing config name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := identityHealthChecker{
				binaryName: tt.binaryName,
				envPrefix:  tt.envPrefix,
				configName: tt.configName,
			}

			err := checker.CheckHealth(context.Background())
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestBuildBackendSelectsConfiguredKind(t *testing.T) {
	cfg := &config.Config{}
	cfg.Backend.Kind = "dns"
	cfg.Backend.DNS.BaseURL = "http://dns.example.com:5380"
	cfg.Backend.DNS.Token = "t"

	backend, err := buildBackend(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, adapter.BackendDNS, backend.Backend())

	cfg = &config.Config{}
	cfg.Backend.Kind = "pdns"
	cfg.Backend.PDNS.BaseURL = "http://dns.example.com:8081"
	cfg.Backend.PDNS.APIKey = "k"

	backend, err = buildBackend(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, adapter.BackendPDNS, backend.Backend())
}

func TestBuildBackendRejectsUnknownKind(t *testing.T) {
	cfg := &config.Config{}
	cfg.Backend.Kind = "carrier-pigeon"

	_, err := buildBackend(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported backend kind")
}
