package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/livecap/internal/config"
	"github.com/Iron-Ham/livecap/internal/dashboard"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch all running recorders",
	Long: `Show a live table of every recorder publishing to the status directory.

Records whose heartbeat is older than 60 seconds are shown as STALE; records
older than 90 minutes are hidden. The table refreshes when a record changes
and every monitor.refresh_seconds.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Bool("plain", false, "print text snapshots instead of the interactive table")
	monitorCmd.Flags().Bool("once", false, "print one snapshot and exit")
	monitorCmd.Flags().StringArrayP("filter", "f", nil, "only show subjects matching this glob (repeatable)")
	monitorCmd.Flags().Duration("refresh", 0, "refresh interval (default from config)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	flags := cmd.Flags()

	patterns, _ := flags.GetStringArray("filter")
	filter, err := dashboard.NewFilter(patterns...)
	if err != nil {
		return err
	}

	refresh := cfg.Monitor.Refresh()
	if d, _ := flags.GetDuration("refresh"); d > 0 {
		refresh = d
	}
	plain, _ := flags.GetBool("plain")
	once, _ := flags.GetBool("once")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return dashboard.Run(ctx, dashboard.Options{
		Source: dashboard.Source{
			Fs:     afero.NewOsFs(),
			Dir:    cfg.Status.Dir,
			Filter: filter,
			Now:    time.Now,
		},
		Refresh: refresh,
		Plain:   plain || cfg.Monitor.Plain,
		Once:    once,
		Out:     cmd.OutOrStdout(),
	})
}
