// Package cmd wires the CLI commands.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// versionInfo is stamped by the build via SetVersionInfo.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected by the linker.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "holmes-agent",
	Short: "Asynchronous job lifecycle agent for automation and DNS backends",
	Long: `holmes-agent accepts automation, orchestration, and DNS record change
requests, runs each as an independent background job against a configured
backend, and tracks every job through a persistent lifecycle store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// exitError wraps an error with a stable process exit code.
func exitError(code int, message string, err error) error {
	return fmt.Errorf("%s: %w (exit code %d)", message, err, code)
}
