package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bianoble/glance-stream-sync/internal/engine"
	"github.com/bianoble/glance-stream-sync/internal/mirror"
)

var (
	syncBinary     string
	syncNoProgress bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one scheduled sync",
	Long: `Takes the run lock, loads identity.yaml and mirrors.yaml, points the
image-stream endpoint at the swift data path, mirrors every entry of
mirror_list in order and then removes the fast-poll cron file unless the
failure is expected to clear up on its own.

Exits 0 when another sync holds the lock and after every completed run,
whatever its outcome. Exits 1 when the configuration is not ready yet.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := resolvedPaths()

		logger, closeLog, err := newLogger("sync", paths)
		if err != nil {
			return err
		}
		defer closeLog()

		eng := &engine.SyncEngine{
			Paths:       paths,
			MetricsFile: v.GetString("metrics-file"),
			Binary:      syncBinary,
			Progress:    !syncNoProgress,
			Logger:      logger,
		}

		result, err := eng.Sync(context.Background())
		if err != nil {
			return &ExitError{Code: engine.ExitCode(err), Err: err}
		}

		if result.Locked {
			info("Another sync is running.")
			return nil
		}

		m := result.Mirrors
		for _, name := range m.Completed {
			detail("synced  %s", name)
		}
		if m.Outcome != mirror.Success {
			errorf("%s: %v", m.Outcome, m.Err)
		}
		info("Sync finished: %s, %d of %d mirrors completed.", m.Outcome, len(m.Completed), mirrorCount(m))
		return nil
	},
}

func mirrorCount(r mirror.Result) int {
	if r.Failed != "" {
		return len(r.Completed) + 1
	}
	return len(r.Completed)
}

func init() {
	syncCmd.Flags().StringVar(&syncBinary, "engine", mirror.DefaultBinary, "simplestreams glance mirror command")
	syncCmd.Flags().BoolVar(&syncNoProgress, "no-progress", false, "skip the dry pass and per-image progress")
	rootCmd.AddCommand(syncCmd)
}
