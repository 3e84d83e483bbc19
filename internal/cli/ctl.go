package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/korvolabs/korvod/internal/config"
	"github.com/korvolabs/korvod/internal/ipc"
)

const sendTimeout = 2 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := send(cmd, ipc.CommandStatus)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "state:   %s\n", resp.State)
		if resp.Session != "" {
			fmt.Fprintf(out, "session: %s\n", resp.Session)
		}
		fmt.Fprintf(out, "volume:  %d%%\n", resp.Volume)
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Ask the running daemon to start recording",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := send(cmd, ipc.CommandStart)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "recording requested (state: %s)\n", resp.State)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask the running daemon to stop recording",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := send(cmd, ipc.CommandStop)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stop requested (state: %s)\n", resp.State)
		return nil
	},
}

// send performs one control socket roundtrip against the daemon named by the
// active configuration.
func send(cmd *cobra.Command, command string) (ipc.Response, error) {
	loaded, err := config.Load(configPath)
	if err != nil {
		return ipc.Response{}, err
	}

	path := loaded.Config.Control.Socket
	if path == "" {
		path, err = ipc.RuntimeSocketPath()
		if err != nil {
			return ipc.Response{}, err
		}
	}

	resp, err := ipc.Send(cmd.Context(), path, ipc.Request{Command: command}, sendTimeout)
	if err != nil {
		return ipc.Response{}, fmt.Errorf("reach daemon at %s: %w (is korvod running?)", path, err)
	}
	if !resp.OK {
		return resp, fmt.Errorf("daemon rejected %s: %s", command, resp.Error)
	}
	return resp, nil
}
