package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/bianoble/glance-stream-sync/internal/engine"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a sync is running and how the last one ended",
	Long: `Shows the pid holding the run lock, whether the fast-poll cron file is
installed and when it fires next, and the record left by the last run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		now := time.Now()
		report, err := engine.Status(resolvedPaths(), now)
		if err != nil {
			return err
		}

		if report.Running {
			info("%-12s running (pid %d)", "sync:", report.PID)
		} else {
			info("%-12s idle", "sync:")
		}

		switch {
		case !report.TriggerPresent:
			info("%-12s not installed", "fast poll:")
		case report.TriggerErr != nil:
			info("%-12s installed (%v)", "fast poll:", report.TriggerErr)
		default:
			info("%-12s installed, next at %s", "fast poll:", report.NextPoll.Format(time.RFC3339))
		}

		rec := report.LastRun
		if rec == nil {
			info("%-12s none recorded", "last run:")
			return nil
		}
		info("%-12s %s (%s)", "last run:", rec.Phase, rec.Outcome)
		info("%-12s %s", "run id:", rec.RunID)
		info("%-12s %s", "started:", rec.StartedAt.Format(time.RFC3339))
		if rec.FinishedAt != nil {
			info("%-12s %s", "took:", rec.Duration().Round(time.Second))
		}
		info("%-12s %d", "completed:", rec.Completed)
		if rec.Reconcile != "" {
			info("%-12s %s", "endpoint:", rec.Reconcile)
		}
		if rec.Message != "" {
			info("%-12s %s", "message:", rec.Message)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
