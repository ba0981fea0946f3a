package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LeJamon/goXRPLsync/internal/node"
)

// serveCmd starts the daemon
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sync daemon",
	Long: `Start xrplsyncd, which:
- connects to the configured peers and accepts inbound peers
- acquires ledgers that trusted validators have validated
- serves held ledgers to peers that ask for them
- exposes Prometheus metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closer, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := node.New(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Startup failed")
		return err
	}

	logger.Info().Str("version", version).Str("config", cfg.GetConfigPath()).Msg("Starting xrplsyncd")
	if err := n.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("Node stopped with error")
		return err
	}
	logger.Info().Msg("Shutdown complete")
	return nil
}
