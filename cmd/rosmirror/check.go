package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/rosmirror/internal/models"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check upstream once and sync new versions",
	Long: `Check resolves the current upstream versions, downloads whatever is
missing for the allowed architectures, publishes the pointer files and
records the outcome in the history.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	if err := restore(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			printWarning("\nCheck interrupted, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	result := apiClient.Sync.Check(ctx)

	if jsonOutput {
		printJSON(result)
	} else {
		printCheckResult(result)
	}

	if result.Status != models.StatusSuccess {
		return fmt.Errorf("check %s: %s", result.Status, result.Message)
	}
	return nil
}

func printCheckResult(result models.CheckResult) {
	fmt.Printf("\nCheck Summary:\n")
	fmt.Printf("   Status:     %s\n", result.Status)
	fmt.Printf("   v6:         %s\n", orDash(result.Versions.V6))
	fmt.Printf("   v7 fixed:   %s\n", orDash(result.Versions.V7Fixed))
	fmt.Printf("   v7 latest:  %s\n", orDash(result.Versions.V7Latest))
	fmt.Printf("   Downloaded: %d\n", result.Downloaded)
	if result.Failed > 0 {
		fmt.Printf("   Failed:     %d\n", result.Failed)
	}
	fmt.Printf("   Duration:   %s\n", result.Duration.Round(time.Millisecond))

	switch {
	case result.Status == models.StatusSuccess:
		printSuccess("\nMirror is up to date")
	case result.Status.Soft():
		printWarning("\n%s", result.Message)
	default:
		printError("\n%s", result.Message)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
