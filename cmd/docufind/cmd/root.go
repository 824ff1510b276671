// Package cmd provides the CLI commands for docufind.
package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docufind/docufind/internal/config"
	"github.com/docufind/docufind/internal/logging"
	"github.com/docufind/docufind/internal/registry"
	"github.com/docufind/docufind/pkg/version"
)

var (
	cfgPath     string
	dataDirFlag string
	debugMode   bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the docufind CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docufind",
		Short: "Index document collections and search them all at once",
		Long: `Docufind indexes folders of documents (PDF, Word, Excel, CSV,
text, markdown) into per-collection full-text stores and answers
queries across every registered collection at once.

Start by registering and indexing a folder:

  docufind index ~/Documents/reports

Then search everything:

  docufind search "quarterly revenue"`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("docufind version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default ~/.docufind/config.yaml)")
	cmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Data directory for registry and stores (default ~/.docufind)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newCollectionsCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newCompactCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig builds the effective configuration from the config file,
// environment, and root flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if dataDirFlag != "" {
		cfg.Storage.DataDir = dataDirFlag
	}
	if debugMode {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// openRegistry opens the source registry in the configured data
// directory.
func openRegistry(cfg *config.Config) (*registry.Registry, error) {
	reg, err := registry.Open(cfg.DataDir())
	if err != nil {
		return nil, fmt.Errorf("open registry in %s: %w", cfg.DataDir(), err)
	}
	return reg, nil
}

// setupLogging routes structured logs to the configured log file. The
// console stays reserved for command output.
func setupLogging(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, cleanup, err := logging.Setup(logging.Config{
		Level:     cfg.Logging.Level,
		FilePath:  filepath.Join(cfg.LogDir(), "docufind.log"),
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxBackups,
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}
