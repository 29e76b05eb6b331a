// Package main is the CLI entry point for onionbell.
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/onion108/onionbell/internal/config"
)

var (
	// Version info (set via ldflags)
	Version   = "0.3.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "onionbell",
	Short: "Play sounds for Hyprland bell events",
	Long: `onionbell listens for bell events on the Hyprland event socket, looks up
the ringing window, picks a sound with the first matching rule from the
configuration and plays it.

Without a subcommand it runs the daemon in the foreground.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
	Args:          cobra.NoArgs,
	RunE:          runDaemon,
}

var (
	configPath    string
	logLevel      string
	controlSocket string

	queryStrategy string
	waitSockets   bool
	waitTimeout   time.Duration
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the config file (default $XDG_CONFIG_HOME/"+config.AppName+"/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&controlSocket, "control-socket", "", "control socket path (default $XDG_RUNTIME_DIR/"+config.AppName+"/control.sock)")

	rootCmd.Flags().StringVar(&queryStrategy, "query", "", "window query strategy, overrides the config (socket|hyprctl)")
	rootCmd.Flags().BoolVar(&waitSockets, "wait", false, "wait for the Hyprland sockets to appear before connecting")
	rootCmd.Flags().DurationVar(&waitTimeout, "wait-timeout", 0, "give up waiting after this long (0 waits forever)")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(ringCmd)
	rootCmd.AddCommand(versionCmd)
}
