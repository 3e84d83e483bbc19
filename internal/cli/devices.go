package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/korvolabs/korvod/internal/audio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available audio input devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := audio.ListDevices(cmd.Context())
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			return errors.New("no audio devices found")
		}

		for _, device := range devices {
			defaultMark := " "
			if device.Default {
				defaultMark = "*"
			}
			availability := "yes"
			if !device.Available {
				availability = "no"
			}
			muted := "no"
			if device.Muted {
				muted = "yes"
			}
			fmt.Fprintf(
				cmd.OutOrStdout(),
				"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
				defaultMark,
				device.ID,
				device.Description,
				device.State,
				availability,
				muted,
			)
		}
		return nil
	},
}
