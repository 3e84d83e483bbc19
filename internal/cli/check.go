package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/korvolabs/korvod/internal/config"
	"github.com/korvolabs/korvod/internal/doctor"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run configuration and environment checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}

		report := doctor.Run(loaded)
		fmt.Fprintln(cmd.OutOrStdout(), report.String())
		if !report.OK() {
			return errors.New("one or more checks failed")
		}
		return nil
	},
}
