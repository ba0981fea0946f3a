package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/LeJamon/goXRPLsync/internal/config"
	"github.com/LeJamon/goXRPLsync/internal/logging"
)

var (
	// Global flags
	configFile string
	debug      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "xrplsyncd",
	Short: "xrplsyncd - XRPL ledger sync daemon",
	Long: `xrplsyncd fetches XRPL ledger state trees from peers, verifies every node
against the ledger hash, tracks validator validations to find which ledgers
the network agrees on, and serves the ledgers it holds to other peers.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path (TOML)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging regardless of config")
}

// loadConfig reads the configuration named by --conf and applies the
// command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Logging.Level = zerolog.LevelDebugValue
	}
	return cfg, nil
}

// setupLogger builds the process logger and installs it as the default.
func setupLogger(cfg *config.Config) (zerolog.Logger, io.Closer, error) {
	logger, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	logging.Logger = logger
	return logger, closer, nil
}
