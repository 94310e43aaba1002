package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/TheMichaelB/rosmirror/internal/models"
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List mirrored versions",
	Args:  cobra.NoArgs,
	RunE:  runVersions,
}

var activateCmd = &cobra.Command{
	Use:   "activate <version>",
	Short: "Serve a mirrored version as the current one for its branch",
	Long: `Activate rolls a branch back (or forward) to a version that is
already complete on disk, rewrites the pointer files and records the
change in the history.`,
	Example: `  rosmirror activate 7.20.4`,
	Args:    cobra.ExactArgs(1),
	RunE:    runActivate,
}

var removeCmd = &cobra.Command{
	Use:     "remove <version>",
	Short:   "Delete a mirrored version that is not active",
	Example: `  rosmirror remove 7.19.2 --yes`,
	Args:    cobra.ExactArgs(1),
	RunE:    runRemove,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Apply the retention policy now",
	Args:  cobra.NoArgs,
	RunE:  runCleanup,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the activation history, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var (
	removeYes    bool
	historyLimit int
)

func init() {
	rootCmd.AddCommand(versionsCmd, activateCmd, removeCmd, cleanupCmd, historyCmd)

	removeCmd.Flags().BoolVarP(&removeYes, "yes", "y", false,
		"Do not ask for confirmation")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20,
		"Number of entries to show (0 = all)")
}

func runVersions(cmd *cobra.Command, args []string) error {
	if err := restore(); err != nil {
		return err
	}

	list := apiClient.Sync.Versions()
	if jsonOutput {
		printJSON(list)
		return nil
	}

	if len(list) == 0 {
		printInfo("No versions mirrored yet")
		return nil
	}

	active := apiClient.Active.Snapshot()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tMAJOR\tSIZE\tCOMPLETE\tACTIVE")
	for _, v := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\n",
			v.Version, v.Major, formatBytes(v.Size), v.Complete, activeBranch(active, v.Version))
	}
	return w.Flush()
}

func activeBranch(active models.Versions, version string) string {
	var branches []string
	for _, b := range models.Branches {
		if active.Get(b).Version == version {
			branches = append(branches, string(b))
		}
	}
	return strings.Join(branches, ",")
}

func runActivate(cmd *cobra.Command, args []string) error {
	if err := restore(); err != nil {
		return err
	}

	if err := apiClient.Sync.Activate(context.Background(), args[0]); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"activated": args[0],
			"versions":  apiClient.Active.Snapshot(),
		})
		return nil
	}
	printSuccess("Activated %s", args[0])
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	if err := restore(); err != nil {
		return err
	}

	if !removeYes {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("refusing to remove %s without --yes on a non-interactive terminal", args[0])
		}
		if !confirm(fmt.Sprintf("Remove version %s? [y/N]: ", args[0])) {
			printInfo("Aborted")
			return nil
		}
	}

	if err := apiClient.Sync.Remove(args[0]); err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"removed": args[0]})
		return nil
	}
	printSuccess("Removed %s", args[0])
	return nil
}

func confirm(prompt string) bool {
	fmt.Fprint(os.Stderr, prompt)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if err := restore(); err != nil {
		return err
	}

	results, err := apiClient.Sync.Cleanup()
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(results)
		return nil
	}

	branches := make([]string, 0, len(results))
	for b := range results {
		branches = append(branches, string(b))
	}
	sort.Strings(branches)

	for _, b := range branches {
		r := results[models.Branch(b)]
		fmt.Printf("%s: removed %d, kept %d, freed %s\n", b, len(r.Removed), len(r.Kept), formatBytes(r.BytesFreed))
		for _, v := range r.Removed {
			fmt.Printf("   - %s\n", v)
		}
		for _, v := range r.Exempt {
			printWarning("   ? %s (unparseable, left in place)", v)
		}
		for _, v := range r.Failed {
			printError("   ! %s (delete failed)", v)
		}
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	entries, err := apiClient.Sync.History(historyLimit)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(entries)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tV6\tV7 FIXED\tV7 LATEST")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"), orDash(e.V6Stable), orDash(e.V7Fixed), orDash(e.V7Stable))
	}
	return w.Flush()
}
