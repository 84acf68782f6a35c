// Package orchd is the daemon's command-line entry point: load org and
// repo configuration, construct the service, and either run one tick or
// loop until interrupted.
package orchd

import (
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	orgConfigPath  string
	reposConfigDir string
	sqlitePath     string
	eventLogRoot   string
	once           bool
	tickInterval   string
	debugFlag      bool
)

var rootCmd = &cobra.Command{
	Use:     "orchd",
	Short:   "Multi-agent coding orchestrator daemon",
	Long:    `orchd schedules coding tasks across claude/codex/gemini model adapters, drives each through a git worktree and Graphite stack, and gates merges on verification and review.`,
	Version: version,
	RunE:    runDaemon,
}

func init() {
	rootCmd.Flags().StringVar(&orgConfigPath, "org-config", "config/org.toml", "path to the org-wide configuration file")
	rootCmd.Flags().StringVar(&reposConfigDir, "repos-config-dir", "config/repos", "directory of per-repo *.toml configuration files")
	rootCmd.Flags().StringVar(&sqlitePath, "sqlite-path", ".orch/state.sqlite", "path to the sqlite state database")
	rootCmd.Flags().StringVar(&eventLogRoot, "event-log-root", ".orch/events", "directory for the JSONL event log")
	rootCmd.Flags().BoolVar(&once, "once", false, "run a single scheduler tick and exit")
	rootCmd.Flags().StringVar(&tickInterval, "tick-interval", "5s", "interval between scheduler ticks when running continuously")
	rootCmd.Flags().BoolVarP(&debugFlag, "debug", "d", false, "enable debug logging (also: ORCHD_DEBUG=1)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string, called from main with ldflags values.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
