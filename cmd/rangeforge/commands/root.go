// Package commands implements the rangeforge CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// buildVersion is the version string passed at build time, used to tag
	// traces.
	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rangeforge",
		Short: "RangeForge - Cloud Range Provisioner",
		Long: `RangeForge provisions isolated, disposable cloud ranges from declarative
YAML blueprints.

Features:
  - Multi-tenant credential vault (age + argon2id)
  - Blueprint schema and network topology validation
  - Policy admission via OPA/rego
  - Asynchronous deploy/destroy job pool
  - AWS and Azure provider drivers`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	// Add subcommands
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newUserCommand())
	rootCmd.AddCommand(newSecretsCommand())
	rootCmd.AddCommand(newDeployCommand())
	rootCmd.AddCommand(newDestroyCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newRangesCommand())

	return rootCmd
}
