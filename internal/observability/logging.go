// Package observability wires structured logging and the telemetry pipeline
// used across the service and CLI.
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the service logger emitting structured JSON.
var Logger *zap.Logger = zap.NewNop()

// CLILogger emits console-formatted output for interactive commands.
var CLILogger *zap.Logger = zap.NewNop()

// InitLogging builds the global loggers. Profile "structured" selects JSON
// for both; "console" keeps human-readable output on the CLI logger.
func InitLogging(level, profile string) error {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	svcCfg := zap.NewProductionConfig()
	svcCfg.Level = zap.NewAtomicLevelAt(lvl)
	svcCfg.EncoderConfig.TimeKey = "ts"
	svcCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	svc, err := svcCfg.Build()
	if err != nil {
		return fmt.Errorf("build service logger: %w", err)
	}

	cli := svc
	if strings.EqualFold(profile, "console") {
		cliCfg := zap.NewDevelopmentConfig()
		cliCfg.Level = zap.NewAtomicLevelAt(lvl)
		cli, err = cliCfg.Build()
		if err != nil {
			return fmt.Errorf("build cli logger: %w", err)
		}
	}

	Logger = svc
	CLILogger = cli
	return nil
}

// Sync flushes any buffered log entries. Called on shutdown.
func Sync() {
	_ = Logger.Sync()
	_ = CLILogger.Sync()
}
