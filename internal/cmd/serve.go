package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bakerstreetlabs/holmes-agent/internal/config"
	"github.com/bakerstreetlabs/holmes-agent/internal/observability"
	"github.com/bakerstreetlabs/holmes-agent/internal/server"
	"github.com/bakerstreetlabs/holmes-agent/internal/server/handlers"
	"github.com/bakerstreetlabs/holmes-agent/pkg/adapter"
	"github.com/bakerstreetlabs/holmes-agent/pkg/adapter/awx"
	"github.com/bakerstreetlabs/holmes-agent/pkg/adapter/dns"
	"github.com/bakerstreetlabs/holmes-agent/pkg/adapter/pdns"
	"github.com/bakerstreetlabs/holmes-agent/pkg/docsink"
	"github.com/bakerstreetlabs/holmes-agent/pkg/job"
	"github.com/bakerstreetlabs/holmes-agent/pkg/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the job lifecycle API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Listen host (overrides config)")
	serveCmd.Flags().Int("port", 0, "Listen port (overrides config)")
	serveCmd.Flags().String("backend", "", "Backend adapter: awx, dns, or pdns (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	overrides := serveOverrides(cmd)
	cfg, err := config.Load(ctx, overrides)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to load configuration", err)
	}

	if err := observability.InitLogging(cfg.Logging.Level, cfg.Logging.Profile); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to initialize logging", err)
	}
	defer observability.Sync()
	logger := observability.Logger

	var metrics *observability.Metrics
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metrics, metricsHandler, err = observability.InitTelemetry(ctx)
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to initialize telemetry", err)
		}
		defer func() { _ = observability.ShutdownTelemetry(context.Background()) }()
	}

	store, err := job.NewStore(job.StoreConfig{
		CacheDir:  cfg.Jobs.CacheDir,
		Retention: cfg.Jobs.Retention,
	}, logger)
	if err != nil {
		return exitError(foundry.ExitFileReadError, "Failed to open job cache", err)
	}

	backend, err := buildBackend(cfg, logger)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to build backend adapter", err)
	}

	catalog := workflow.NewCatalog()
	if cfg.Jobs.CatalogPath != "" {
		catalog, err = workflow.LoadCatalog(cfg.Jobs.CatalogPath)
		if err != nil {
			return exitError(foundry.ExitFileReadError, "Failed to load step catalog", err)
		}
	}

	var sink docsink.Sink = docsink.Discard{}
	if cfg.Docs.Path != "" {
		sink = docsink.NewMarkdownFile(cfg.Docs.Path, logger)
	}

	engine, err := workflow.NewEngine(workflow.EngineOptions{
		Store:   store,
		Backend: backend,
		Sink:    sink,
		Catalog: catalog,
		Config: workflow.Config{
			PollInterval: cfg.Jobs.PollInterval,
			PollTimeout:  cfg.Jobs.PollTimeout,
		},
		Logger: logger,
	})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to build workflow engine", err)
	}

	if cfg.Health.Enabled {
		handlers.InitHealthManager(versionInfo.Version)
		manager := handlers.GetHealthManager()
		manager.RegisterChecker("job_cache", cacheHealthChecker{store: store})
		manager.RegisterChecker("telemetry", telemetryHealthChecker{enabled: cfg.Metrics.Enabled})
		manager.RegisterChecker("identity", identityHealthChecker{
			binaryName: "holmes-agent",
			envPrefix:  "HOLMES",
			configName: "holmes-agent",
		})
	}

	srv := server.New(cfg.Server.Host, cfg.Server.Port, server.Options{
		API: &handlers.API{
			Store:   store,
			Engine:  engine,
			Backend: backend,
			Metrics: metrics,
			Logger:  logger,
		},
		AuthToken:      cfg.Auth.Token,
		MetricsHandler: metricsHandler,
		Version:        versionInfo.Version,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", srv.Addr()),
			zap.String("backend", string(backend.Backend())))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return exitError(foundry.ExitSignalInt, "Shutdown did not complete cleanly", err)
		}
		store.Purge()
	}
	return nil
}

func serveOverrides(cmd *cobra.Command) map[string]any {
	overrides := map[string]any{}
	serverOverrides := map[string]any{}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		serverOverrides["host"] = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		serverOverrides["port"] = port
	}
	if len(serverOverrides) > 0 {
		overrides["server"] = serverOverrides
	}
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		overrides["backend"] = map[string]any{"kind": backend}
	}
	return overrides
}

func buildBackend(cfg *config.Config, logger *zap.Logger) (adapter.Adapter, error) {
	switch cfg.Backend.Kind {
	case "awx":
		return awx.New(awx.Config{
			BaseURL:        cfg.Backend.AWX.BaseURL,
			Username:       cfg.Backend.AWX.Username,
			Password:       cfg.Backend.AWX.Password,
			VerifySSL:      cfg.Backend.AWX.VerifySSL,
			RequestTimeout: cfg.Backend.AWX.RequestTimeout,
			RateLimit:      cfg.Backend.AWX.RateLimit,
		}, logger)
	case "dns":
		return dns.New(dns.Config{
			BaseURL:        cfg.Backend.DNS.BaseURL,
			Token:          cfg.Backend.DNS.Token,
			RequestTimeout: cfg.Backend.DNS.RequestTimeout,
		}, logger)
	case "pdns":
		return pdns.New(pdns.Config{
			BaseURL:        cfg.Backend.PDNS.BaseURL,
			APIKey:         cfg.Backend.PDNS.APIKey,
			ServerID:       cfg.Backend.PDNS.ServerID,
			RequestTimeout: cfg.Backend.PDNS.RequestTimeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported backend kind %q", cfg.Backend.Kind)
	}
}

// cacheHealthChecker verifies the job cache directory is still present.
type cacheHealthChecker struct {
	store *job.Store
}

func (c cacheHealthChecker) CheckHealth(ctx context.Context) error {
	if c.store == nil {
		return fmt.Errorf("job store not initialized")
	}
	if c.store.CacheDir() == "" {
		return fmt.Errorf("job cache dir not configured")
	}
	return nil
}

// telemetryHealthChecker verifies the metrics pipeline came up.
type telemetryHealthChecker struct {
	enabled bool
}

func (c telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return fmt.Errorf("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker verifies the service identity fields are set.
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (c identityHealthChecker) CheckHealth(ctx context.Context) error {
	if c.binaryName == "" {
		return fmt.Errorf("missing binary name")
	}
	if c.envPrefix == "" {
		return fmt.Errorf("missing env prefix")
	}
	if c.configName == "" {
		return fmt.Errorf("missing config name")
	}
	return nil
}
