package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bianoble/glance-stream-sync/internal/config"
)

// Build-time variables set via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// EnvPrefix prefixes every environment override, e.g. GLANCE_STREAM_SYNC_STATE_DIR.
const EnvPrefix = "GLANCE_STREAM_SYNC"

// Global flags.
var (
	verbose bool
	quiet   bool
)

// v holds the layered settings: flags over environment over defaults.
var v = viper.New()

// ExitError carries a process exit status out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

var rootCmd = &cobra.Command{
	Use:   "glance-stream-sync",
	Short: "Mirror simplestreams image metadata into glance",
	Long: `glance-stream-sync is the scheduled job that mirrors simplestreams image
streams into the glance image catalog. cron runs 'glance-stream-sync sync';
while the fast-poll cron file is installed it runs every minute until a sync
completes or fails for good.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("glance-stream-sync %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("conf-dir", config.DefaultConfDir, "directory holding identity.yaml and mirrors.yaml")
	flags.String("log-file", config.DefaultLogFile, "append-only run log (empty disables)")
	flags.String("log-level", "info", "minimum level written to the log file")
	flags.String("trigger", config.DefaultTrigger, "fast-poll cron file")
	flags.String("state-dir", config.DefaultStateDir, "directory for the last-run record")
	flags.String("keyring", config.DefaultKeyring, "keyring verifying signed stream indexes")
	flags.String("metrics-file", "", "node-exporter textfile to write run metrics to")
	flags.BoolVar(&verbose, "verbose", false, "also log to stderr")
	flags.BoolVar(&quiet, "quiet", false, "minimal output (errors only)")

	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// The packaging has always exported this name; it wins over the prefixed one.
	if err := v.BindEnv("conf-dir", config.EnvConfDir, EnvPrefix+"_CONF_DIR"); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *ExitError
		if !errors.As(err, &exitErr) || exitErr.Err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		return err
	}
	return nil
}
