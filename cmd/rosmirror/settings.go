package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/rosmirror/internal/config"
	"github.com/TheMichaelB/rosmirror/internal/schedule"
)

var archesCmd = &cobra.Command{
	Use:   "arches [arch...]",
	Short: "Show or replace the mirrored architectures",
	Long: `Without arguments arches prints the allowed architectures. With
arguments it replaces the list; the next check downloads the packages
for newly added architectures.`,
	Example: `  rosmirror arches
  rosmirror arches arm arm64 x86`,
	RunE: runArches,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show or change the daily check schedule",
	Args:  cobra.NoArgs,
	RunE:  runSchedule,
}

var schedulePauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause scheduled checks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.Schedule.Pause(); err != nil {
			return err
		}
		return showSchedule()
	},
}

var scheduleResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume scheduled checks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.Schedule.Resume(); err != nil {
			return err
		}
		return showSchedule()
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configExampleCmd = &cobra.Command{
	Use:         "example <path>",
	Short:       "Write an example config file with every default",
	Example:     `  rosmirror config example rosmirror.yaml`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{"skipClient": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SaveExample(args[0]); err != nil {
			return err
		}
		printSuccess("Wrote %s", args[0])
		return nil
	},
}

var (
	scheduleTime     string
	scheduleTimezone string
	scheduleDays     string
	scheduleWindow   int
	scheduleEnabled  bool
)

func init() {
	rootCmd.AddCommand(archesCmd, scheduleCmd, configCmd)
	scheduleCmd.AddCommand(schedulePauseCmd, scheduleResumeCmd)
	configCmd.AddCommand(configExampleCmd)

	scheduleCmd.Flags().StringVar(&scheduleTime, "time", "",
		"Daily check time as HH:MM")
	scheduleCmd.Flags().StringVar(&scheduleTimezone, "timezone", "",
		"IANA time zone of --time")
	scheduleCmd.Flags().StringVar(&scheduleDays, "days", "",
		"Comma separated days (mon..sun), empty keeps the current list")
	scheduleCmd.Flags().IntVar(&scheduleWindow, "window", 0,
		"Minutes after --time during which a check may start")
	scheduleCmd.Flags().BoolVar(&scheduleEnabled, "enabled", true,
		"Enable scheduled checks")
}

func runArches(cmd *cobra.Command, args []string) error {
	list := apiClient.Arches.List()
	if len(args) > 0 {
		var err error
		if list, err = apiClient.Arches.Update(args); err != nil {
			return err
		}
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"arches": list})
		return nil
	}
	if len(args) > 0 {
		printSuccess("Allowed architectures: %s", strings.Join(list, ", "))
		return nil
	}
	fmt.Println(strings.Join(list, "\n"))
	return nil
}

func runSchedule(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if !flags.Changed("time") && !flags.Changed("timezone") && !flags.Changed("days") &&
		!flags.Changed("window") && !flags.Changed("enabled") {
		return showSchedule()
	}

	next := apiClient.Schedule.Config()
	if flags.Changed("time") {
		next.Time = scheduleTime
	}
	if flags.Changed("timezone") {
		next.Timezone = scheduleTimezone
	}
	if flags.Changed("days") {
		next.Days = nil
		for _, d := range strings.Split(scheduleDays, ",") {
			if d = strings.TrimSpace(d); d != "" {
				next.Days = append(next.Days, d)
			}
		}
	}
	if flags.Changed("window") {
		next.WindowMinutes = scheduleWindow
	}
	if flags.Changed("enabled") {
		next.Enabled = scheduleEnabled
	}

	if _, err := apiClient.Schedule.Update(next); err != nil {
		return err
	}
	return showSchedule()
}

func showSchedule() error {
	sc := apiClient.Schedule.Config()
	next := apiClient.Schedule.NextRun(time.Now())

	if jsonOutput {
		out := map[string]interface{}{"schedule": sc}
		if !next.IsZero() {
			out["next_run"] = next
		}
		printJSON(out)
		return nil
	}

	fmt.Printf("Enabled:  %v\n", sc.Enabled)
	fmt.Printf("Paused:   %v\n", sc.Paused)
	fmt.Printf("Time:     %s %s\n", sc.Time, sc.Timezone)
	fmt.Printf("Days:     %s\n", daysOrEvery(sc))
	fmt.Printf("Window:   %d min\n", sc.WindowMinutes)
	if sc.LastRun != "" {
		fmt.Printf("Last run: %s\n", sc.LastRun)
	}
	if next.IsZero() {
		printWarning("No upcoming run")
	} else {
		printInfo("Next run: %s", next.Local().Format(time.RFC1123))
	}
	return nil
}

func daysOrEvery(sc schedule.Config) string {
	if len(sc.Days) == 0 {
		return "every day"
	}
	return strings.Join(sc.Days, ",")
}
