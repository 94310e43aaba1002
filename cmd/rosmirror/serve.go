package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mirror server and the scheduled checker",
	Long: `Serve restores the active versions from history, then serves the
mirror and admin API while the background runner checks upstream on the
configured schedule.`,
	Example: `  rosmirror serve
  ROSMIRROR_SERVER_LISTEN=:9000 rosmirror serve --config /etc/rosmirror/rosmirror.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveRunOnStart bool

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveRunOnStart, "check-now", false,
		"Run a check immediately instead of waiting for the schedule")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveRunOnStart {
		apiClient.Sync.Trigger("startup")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.WithFields(map[string]interface{}{
		"listen":   cfg.Server.Listen,
		"data_dir": cfg.Storage.DataDir,
		"upstream": cfg.Upstream.BaseURL,
	}).Info("Starting rosmirror")

	return apiClient.Serve(ctx)
}
