package cli

import (
	"os"
	"time"

	"cellreport/internal/config"
	"cellreport/internal/logger"
	"cellreport/internal/reportwindow"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	okMark   = color.New(color.FgGreen).Sprint
	warnMark = color.New(color.FgYellow).Sprint
	badMark  = color.New(color.FgRed).Sprint
	dimText  = color.New(color.Faint).Sprint
)

// RootCmd returns the cellreport command tree.
func RootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "cellreport",
		Short: "Weekly cell report collection and reminders",
		Long: `cellreport collects weekly cell-group reports over Slack and reminds
leaders who have not reported. Reports are filed for Thursday to Saturday;
reminders go out from Thursday 22:00 until the end of Sunday.

Configuration is read from config.yaml (or --config / CONFIG_PATH) and
environment variables, including an optional .env file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				return os.Setenv("CONFIG_PATH", configPath)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")

	root.AddCommand(ServeCmd())
	root.AddCommand(WindowCmd())
	root.AddCommand(NormalizeCmd())
	root.AddCommand(EligibilityCmd())
	root.AddCommand(StatusCmd())
	root.AddCommand(RemindCmd())
	root.AddCommand(CalendarCmd())
	return root
}

func loadConfigAndLogger() (config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return cfg, nil, err
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}

// loadZone resolves --tz; an empty value means the church default zone.
func loadZone(tz string) (*time.Location, error) {
	if tz == "" {
		tz = reportwindow.DefaultTimezone
	}
	return time.LoadLocation(tz)
}

// dateArg parses an optional YYYY-MM-DD argument, defaulting to today in loc.
func dateArg(args []string, loc *time.Location) (time.Time, error) {
	if len(args) == 0 || args[0] == "" {
		return reportwindow.DateOf(time.Now().In(loc)), nil
	}
	return reportwindow.ParseDate(args[0])
}
