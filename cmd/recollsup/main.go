package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
}

func buildRoot() *cobra.Command {
	g := &GlobalFlags{}
	root := &cobra.Command{
		Use:   "recollsup",
		Short: "Supervise the Recoll indexing daemon",
		Long: `recollsup keeps one recollindex monitoring daemon running, restarts it
after crashes with a bounded retry budget, and runs recollq searches.

Examples:
  recollsup serve                         # run the supervisor and its HTTP API
  recollsup status                        # ask a running supervisor
  recollsup reindex                       # restart the daemon with a full reset
  recollsup query "golang" --filter=all   # search the index directly`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&g.ConfigPath, "config", defaultConfigPath(), "path to TOML config file")
	root.PersistentFlags().StringVar(&g.APIUrl, "api-url", "", "supervisor API URL (default from [server] in the config)")
	root.PersistentFlags().DurationVar(&g.APITimeout, "api-timeout", 30*time.Second, "API request timeout")

	root.AddCommand(
		createServeCommand(g),
		createQueryCommand(g),
		createStatusCommand(g),
		createStartCommand(g),
		createStopCommand(g),
		createReindexCommand(g),
		createHostKeyCommand(g),
		createCheckCommand(g),
	)
	return root
}

// defaultConfigPath returns the per-user config file when it exists.
func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	p := filepath.Join(dir, "recollsup", "recollsup.toml")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}
