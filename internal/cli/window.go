package cli

import (
	"fmt"
	"strings"
	"time"

	"cellreport/internal/reportwindow"

	"github.com/spf13/cobra"
)

// WindowCmd prints the reporting window for a date.
func WindowCmd() *cobra.Command {
	var tz string

	cmd := &cobra.Command{
		Use:   "window [YYYY-MM-DD]",
		Short: "Show the Thursday-Saturday reporting window for a date",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := loadZone(tz)
			if err != nil {
				return err
			}
			d, err := dateArg(args, loc)
			if err != nil {
				return err
			}
			w := reportwindow.ReportWindowFor(d)

			var days []string
			for _, day := range w.Days() {
				days = append(days, reportwindow.DateKey(day))
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Date:    %s\n", d.Format("Mon Jan 2 2006"))
			fmt.Fprintf(out, "Week:    %s\n", reportwindow.WeekStartMonday(d).Format("Mon Jan 2 2006"))
			fmt.Fprintf(out, "Window:  %s\n", w)
			fmt.Fprintf(out, "Days:    %s\n", strings.Join(days, " "))
			if w.Contains(d) {
				fmt.Fprintf(out, "         %s\n", okMark("date is inside the window"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tz, "tz", "", "IANA timezone (default America/Sao_Paulo)")
	return cmd
}

// NormalizeCmd moves a date onto the nearest allowed report day.
func NormalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize YYYY-MM-DD",
		Short: "Map a date onto the report day it would be filed under",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := reportwindow.ParseDate(args[0])
			if err != nil {
				return err
			}
			n := reportwindow.NormalizeReportDate(d)
			marker := okMark("unchanged")
			if !n.Equal(d) {
				marker = warnMark("moved")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) -> %s (%s) %s\n",
				reportwindow.DateKey(d), d.Format("Mon"),
				reportwindow.DateKey(n), n.Format("Mon"),
				marker)
			return nil
		},
	}
	return cmd
}

// EligibilityCmd evaluates whether reminders may be sent at an instant.
func EligibilityCmd() *cobra.Command {
	var (
		tz string
		at string
	)

	cmd := &cobra.Command{
		Use:   "eligibility",
		Short: "Check whether reminders may be sent now (or at --at)",
		Long: `Evaluates the reminder gate in the given timezone.

Examples:
  cellreport eligibility
  cellreport eligibility --at 2024-01-18T21:59:00-03:00
  cellreport eligibility --tz Europe/Lisbon`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at (want RFC3339): %w", err)
				}
				now = t
			}
			e := reportwindow.NewCalculator(nil).EvaluateReminderEligibility(now, tz)

			out := cmd.OutOrStdout()
			if e.Allowed {
				fmt.Fprintf(out, "%s %s\n", okMark("ALLOWED"), e.Reason)
				return nil
			}
			fmt.Fprintf(out, "%s %s\n", badMark("BLOCKED"), e.Reason)
			fmt.Fprintf(out, "next:   %s\n", e.FormatNext())
			return nil
		},
	}
	cmd.Flags().StringVar(&tz, "tz", "", "IANA timezone (default America/Sao_Paulo)")
	cmd.Flags().StringVar(&at, "at", "", "instant to evaluate, RFC3339")
	return cmd
}
