package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bianoble/glance-stream-sync/internal/engine"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the configuration documents are ready",
	Long: `Reads identity.yaml and mirrors.yaml and lists every missing, null or
invalid field. Makes no network calls. Exit 0 when both documents are ready;
exit 1 otherwise, matching what 'sync' would do.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := engine.Check(resolvedPaths())
		if err != nil {
			return err
		}

		for _, doc := range result.Documents {
			if doc.Ready {
				info("  ready      %s", doc.Path)
				continue
			}
			info("  not ready  %s", doc.Path)
			for _, p := range doc.Problems {
				info("    - %s", p)
			}
		}

		if !result.Ready {
			return &ExitError{Code: engine.ExitNotReady, Err: fmt.Errorf("configuration not ready")}
		}

		m := result.Loaded.Mirrors
		detail("region:      %s", m.Region)
		detail("cloud name:  %s", m.CloudName)
		detail("use swift:   %t", m.UseSwift)
		for _, e := range m.MirrorList {
			detail("mirror:      %s (max %d)", e.Name(), e.Max)
		}
		info("Configuration ready: %d mirror(s).", len(m.MirrorList))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
