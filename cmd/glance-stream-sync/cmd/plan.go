package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bianoble/glance-stream-sync/internal/engine"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "List the images each mirror would transfer",
	Long: `Reads the stream metadata of every mirror_list entry, applies its
item_filters and max, and prints the selected images with their sizes. Talks
to the mirrors only; keystone and glance are not contacted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths := resolvedPaths()
		logger, closeLog, err := newLogger("plan", paths)
		if err != nil {
			return err
		}
		defer closeLog()

		entries, err := engine.Plan(cmd.Context(), paths, nil, logger)
		if err != nil {
			return err
		}

		failed := 0
		for _, e := range entries {
			if e.Err != nil {
				errorf("%s: %v", e.Mirror, e.Err)
				failed++
				continue
			}
			info("%s: %d image(s), %s", e.Mirror, len(e.Listing.Items), humanSize(e.Listing.TotalBytes()))
			for _, it := range e.Listing.Items {
				detail("%-60s %10s", it.Key(), humanSize(it.Size))
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d mirror(s) could not be listed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}
