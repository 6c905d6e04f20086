package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"cellreport/internal/app"
	"cellreport/internal/domain"
	"cellreport/internal/reminder"
	"cellreport/internal/reportwindow"

	"github.com/spf13/cobra"
)

// StatusCmd lists which leaders have reported for a week.
func StatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [YYYY-MM-DD]",
		Short: "Show who has reported for the week containing a date",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			ref, err := dateArg(args, cfg.Location)
			if err != nil {
				return err
			}
			deps, err := app.Build(cfg, log, false)
			if err != nil {
				return err
			}
			defer deps.Close()

			status, err := deps.Service.Status(cmd.Context(), ref)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
	return cmd
}

func printStatus(out io.Writer, status reminder.WeekStatus) {
	fmt.Fprintf(out, "Window:    %s\n", status.Window)
	gate := okMark("open")
	if !status.Eligibility.Allowed {
		gate = warnMark("closed")
	}
	fmt.Fprintf(out, "Reminders: %s %s\n\n", gate, dimText(status.Eligibility.String()))

	if len(status.Leaders) == 0 {
		fmt.Fprintln(out, "No leaders configured.")
		return
	}
	for _, ls := range status.Leaders {
		if ls.Submitted {
			fmt.Fprintf(out, "  %s %-28s %s  %3d attendee(s) %3d visitor(s)\n", okMark("✓"), ls.Leader.DisplayName(),
				ls.ReportDate.Format("Mon Jan 2"), ls.Attendance, ls.Visitors)
			continue
		}
		note := "missing"
		if ls.RemindersSent > 0 {
			note = fmt.Sprintf("missing, reminded %dx", ls.RemindersSent)
		}
		fmt.Fprintf(out, "  %s %-28s %s\n", badMark("✗"), ls.Leader.DisplayName(), note)
	}
	attendance, visitors := status.Totals()
	fmt.Fprintf(out, "\n%d of %d missing, %d attendee(s) and %d visitor(s) reported\n",
		status.MissingCount(), len(status.Leaders), attendance, visitors)
}

func printHistory(out io.Writer, w reportwindow.ReportWindow, entries []domain.ReminderLogEntry, loc *time.Location) {
	fmt.Fprintf(out, "Reminders for %s\n\n", w)
	if len(entries) == 0 {
		fmt.Fprintln(out, "No reminders recorded.")
		return
	}
	for _, e := range entries {
		mark, detail := okMark("✓"), e.Channel
		if e.Status != domain.ReminderSent {
			mark = badMark("✗")
			detail = strings.TrimSpace(e.Channel + " " + e.Error)
		}
		fmt.Fprintf(out, "  %s %-12s %s  %s %s\n", mark, e.LeaderID, e.SentAt.In(loc).Format("Mon Jan 2 15:04"),
			detail, dimText(e.RunID))
	}
}

// RemindCmd runs the reminder job once, or shows the reminder log.
func RemindCmd() *cobra.Command {
	var (
		dryRun  bool
		history bool
	)

	cmd := &cobra.Command{
		Use:   "remind [YYYY-MM-DD]",
		Short: "Send reminders to leaders who have not reported this week",
		Long: `Runs the reminder job once, outside the schedule. Reminders are only
sent from Thursday 22:00 until the end of Sunday in the configured timezone.
With --history, lists the reminders already recorded for the week containing
the given date (default today) instead.

Examples:
  cellreport remind --dry-run   # list who would be reminded
  cellreport remind
  cellreport remind --history 2024-01-18`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && !history {
				return fmt.Errorf("a date argument is only accepted with --history")
			}
			cfg, log, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer log.Sync()

			deps, err := app.Build(cfg, log, !dryRun && !history)
			if err != nil {
				return err
			}
			defer deps.Close()

			if history {
				ref, err := dateArg(args, cfg.Location)
				if err != nil {
					return err
				}
				w, entries, err := deps.Service.ReminderHistory(cmd.Context(), ref)
				if err != nil {
					return err
				}
				printHistory(cmd.OutOrStdout(), w, entries, cfg.Location)
				return nil
			}

			result, err := deps.Service.Run(cmd.Context(), reminder.RunOptions{DryRun: dryRun})
			fmt.Fprintln(cmd.OutOrStdout(), reminder.FormatRunSummary(result))
			if err != nil {
				return err
			}
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d reminder(s) failed", len(result.Failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show who would be reminded without sending")
	cmd.Flags().BoolVar(&history, "history", false, "show reminders recorded for a week instead of sending")
	return cmd
}
