package main

import (
	"fmt"
	"os"

	"github.com/cuemby/gwsync/pkg/builder"
	"github.com/cuemby/gwsync/pkg/config"
	"github.com/cuemby/gwsync/pkg/log"
	"github.com/cuemby/gwsync/pkg/metrics"
	"github.com/cuemby/gwsync/pkg/registry"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var cfg = &config.Config{}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gwsync",
	Short: "gwsync - Traefik to Consul routing synchronizer",
	Long: `gwsync publishes a Traefik gateway's runtime routing configuration to
Consul, either as key/value entries or as service tags, and keeps it
consistent across registry outages without leaving stale routes behind.

Every flag can be set from the environment: --consul-addr reads CONSUL_ADDR.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"gwsync version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	cfg.SetupFlags(rootCmd.PersistentFlags())

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup applies the environment, validates the configuration and
// initializes logging. It runs before every subcommand but version.
func setup(cmd *cobra.Command, args []string) error {
	if err := config.BindEnv(cmd.Flags()); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Init(cfg.Log())
	log.WithNode(cfg.NodeName)
	metrics.SetVersion(Version)
	return nil
}

// newRegistry returns the Consul client, or an in-memory registry in dry-run mode
func newRegistry() (registry.Client, error) {
	if cfg.DryRun {
		logger := log.WithComponent("registry")
		logger.Warn().Msg("Dry run: publishing to an in-memory registry")
		return registry.NewMemory(), nil
	}
	return registry.NewConsul(cfg.Consul())
}

func newBuilder() (builder.Builder, error) {
	return builder.New(builder.Mode(cfg.Mode), cfg.Builder())
}

var versionCmd = &cobra.Command{
	Use:               "version",
	Short:             "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "gwsync version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}
