// =============================================================================
// Price Sync - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. The root command is
// the base command that all other commands are attached to.
//
// COBRA CLI STRUCTURE:
//   rootCmd (pricesync)
//   ├── processCmd (pricesync process)
//   ├── validateCmd (pricesync validate)
//   ├── pricesCmd (pricesync update-prices)
//   ├── historyCmd (pricesync history)
//   └── versionCmd (pricesync version)
//
// CONFIGURATION:
//   The root command is responsible for:
//   1. Setting up global flags (--config, --verbose)
//   2. Loading the configuration before any subcommand runs
//   3. Setting up logging
//
// =============================================================================

package cmd

import (
	"fmt"
	"os"

	"github.com/dealerops/pricesync/internal/config"
	"github.com/dealerops/pricesync/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the main configuration file.
// This can be overridden using the --config flag.
var cfgFile string

// verbose forces debug logging regardless of the configured level.
var verbose bool

// appConfig and logger are set by the root command's pre-run hook.
var (
	appConfig *config.MainConfig
	logger    *zap.Logger
)

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "pricesync",
	Short: "Price Sync - Load dealer price files into the ERP",
	Long: `Price Sync reads fixed-width dealer price files (.DAT) and reconciles
them against the ERP's vendor price records.

Load types:
  FULL  Every existing vendor price record is backed up to spreadsheets in the
        ERP document store, deleted, and replaced by the file's records.
  NET   Records whose start date is today replace the existing records for
        the same product codes. Other records are skipped.

Example Usage:
  pricesync process                      # Load every file in the FULL and NET directories
  pricesync process --type net           # Load NET files only
  pricesync validate                     # Parse files without contacting the ERP
  pricesync history                      # Show recent runs`,

	SilenceUsage: true,

	// PersistentPreRunE loads configuration and logging for every subcommand
	// except version and help.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		switch cmd.Name() {
		case "version", "help":
			return nil
		}

		cfg, err := config.LoadMainConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load main config: %w", err)
		}
		if verbose {
			cfg.Logging.Level = "debug"
			cfg.Logging.Development = true
		}

		log, err := logging.InitLogger(cfg)
		if err != nil {
			return err
		}
		appConfig = cfg
		logger = log
		return nil
	},

	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},

	// Run prints the help message when no subcommand is given.
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// =============================================================================
// EXECUTE FUNCTION
// =============================================================================

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra has already printed the error; this records it in the audit log.
		log := logging.GetLogger()
		log.Error("command failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	// Persistent flags are available to this command and all subcommands.
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"config.yaml",
		"Path to the main configuration file",
	)

	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging on the console",
	)
}
