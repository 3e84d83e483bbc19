package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/korvolabs/korvod/internal/app"
	"github.com/korvolabs/korvod/internal/config"
	"github.com/korvolabs/korvod/internal/logging"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}

		rt := logging.New(loaded.Config.Log.Level, loaded.Config.Log.Format)
		defer func() { _ = rt.Close() }()
		logger := rt.Logger

		for _, w := range loaded.Warnings {
			fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w.Message)
			logger.Warn("config warning", "message", w.Message)
		}
		logger.Info("daemon start", "config", loaded.Path)

		daemon, err := app.New(loaded.Config, logger)
		if err != nil {
			return err
		}
		return daemon.Run(cmd.Context())
	},
}
