// Package cli defines the korvod command tree.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "korvod",
	Short: "Audio device daemon",
	Long: `korvod - audio device daemon.

Streams microphone audio to a collection server over chunked HTTP while a
record button is held, plays remote MP3 streams to the local output device,
and takes button input from a websocket feed.

Commands:
  run       Run the daemon
  status    Show the state of the running daemon
  start     Ask the running daemon to start recording
  stop      Ask the running daemon to stop recording
  devices   List available audio input devices
  check     Run configuration and environment checks
  version   Print version information`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command under ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file path (default: $XDG_CONFIG_HOME/korvod/config.yaml)")
	rootCmd.AddCommand(runCmd, statusCmd, startCmd, stopCmd, devicesCmd, checkCmd, versionCmd)
}
