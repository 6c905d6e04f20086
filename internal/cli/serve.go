package cli

import (
	"cellreport/internal/app"

	"github.com/spf13/cobra"
)

// ServeCmd runs the Slack bot and the reminder scheduler.
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Slack bot and the weekly reminder scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer log.Sync()
			return app.Run(cmd.Context(), cfg, log)
		},
	}
}
