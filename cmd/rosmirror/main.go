package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/rosmirror/internal/client"
	"github.com/TheMichaelB/rosmirror/internal/config"
	"github.com/TheMichaelB/rosmirror/internal/events"
)

var (
	configPath string
	envFile    string
	jsonOutput bool
	verbose    bool

	cfg       *config.Config
	logger    *events.Logger
	apiClient *client.Client
)

var rootCmd = &cobra.Command{
	Use:   "rosmirror",
	Short: "Local caching mirror for RouterOS upgrades",
	Long: `rosmirror keeps a local copy of the RouterOS packages published by
the vendor and serves them to devices with the same URL layout, so a
router pointed at the mirror upgrades exactly as it would from upstream.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if apiClient != nil {
			_ = apiClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Config file (default: ./rosmirror.yaml, ~/.config/rosmirror, /etc/rosmirror)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"Dotenv file read before environment overrides")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Print machine-readable JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !jsonOutput {
			printError("Error: %v", err)
		}
		os.Exit(1)
	}
}

// setup loads configuration and builds the client for every subcommand
// except the ones that opt out with the "skipClient" annotation.
func setup(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(configPath)
	loader.SetEnvFile(envFile)

	var err error
	cfg, err = loader.Load()
	if err != nil {
		return err
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	ring := events.NewRing(cfg.Log.BufferLines)
	logger, err = events.NewLogger(&cfg.Log, ring)
	if err != nil {
		return err
	}
	events.SetDefault(logger)

	if file := loader.ConfigFile(); file != "" {
		logger.WithField("file", file).Debug("Loaded config")
	}

	if cmd.Annotations["skipClient"] == "true" {
		return nil
	}

	apiClient, err = client.New(cfg, logger, client.WithLogRing(ring))
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	return nil
}

// restore loads the persisted active versions for one-shot commands.
func restore() error {
	if err := apiClient.Restore(); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}
	return nil
}

func printSuccess(format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(os.Stdout, format+"\n", args...)
}

func printInfo(format string, args ...interface{}) {
	color.New(color.FgCyan).Fprintf(os.Stdout, format+"\n", args...)
}

func printWarning(format string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(os.Stderr, format+"\n", args...)
}

func printError(format string, args ...interface{}) {
	color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, format+"\n", args...)
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}
