package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/livecap/internal/config"
	"github.com/Iron-Ham/livecap/internal/dashboard"
	"github.com/Iron-Ham/livecap/internal/procutil"
	"github.com/Iron-Ham/livecap/internal/status"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recorder status once",
	Long: `Display the status records in the status directory once.

With --prune, records that are hidden (no heartbeat for 90 minutes) and
whose process is no longer running are deleted first.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("json", false, "print the classified records as JSON")
	statusCmd.Flags().Bool("prune", false, "remove abandoned records before showing status")
	statusCmd.Flags().StringArrayP("filter", "f", nil, "only show subjects matching this glob (repeatable)")
}

// processAlive is replaced in tests.
var processAlive = procutil.IsProcessAlive

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	out := cmd.OutOrStdout()
	fs := afero.NewOsFs()
	now := time.Now()

	if prune, _ := flags.GetBool("prune"); prune {
		removed, err := status.Prune(fs, cfg.Status.Dir, now, processAlive)
		for _, path := range removed {
			fmt.Fprintf(out, "Removed %s\n", path)
		}
		if err != nil {
			return err
		}
	}

	patterns, _ := flags.GetStringArray("filter")
	filter, err := dashboard.NewFilter(patterns...)
	if err != nil {
		return err
	}
	entries, err := dashboard.Source{Fs: fs, Dir: cfg.Status.Dir, Filter: filter, Now: func() time.Time { return now }}.Load()
	if err != nil {
		return err
	}

	if asJSON, _ := flags.GetBool("json"); asJSON {
		if entries == nil {
			entries = []status.Entry{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}
	return dashboard.RenderPlain(out, dashboard.BuildRows(entries, 0))
}
