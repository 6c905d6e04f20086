package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"cellreport/internal/calendar"
	"cellreport/internal/config"
	"cellreport/internal/reportwindow"

	"github.com/spf13/cobra"
)

// CalendarCmd exports upcoming reporting windows as iCalendar.
func CalendarCmd() *cobra.Command {
	var (
		from   string
		weeks  int
		tz     string
		church string
		out    string
	)

	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Export reporting windows and reminder openings as an .ics feed",
		Long: `Writes one all-day event per Thursday-Saturday reporting window and one
event at each Thursday 22:00 reminder opening. The church name and timezone
come from the configuration unless --church or --tz is given.

Examples:
  cellreport calendar --weeks 8 --out windows.ics
  cellreport calendar --from 2024-01-01 --church "Igreja Vida"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			loc := cfg.Location
			if cmd.Flags().Changed("tz") {
				if loc, err = loadZone(tz); err != nil {
					return err
				}
			}
			if !cmd.Flags().Changed("church") {
				church = cfg.ChurchName
			}

			start := time.Now().In(loc)
			if from != "" {
				if start, err = reportwindow.ParseDate(from); err != nil {
					return err
				}
			}

			write := func(w io.Writer) error {
				return calendar.WriteWindows(w, start, weeks, loc, church)
			}
			if out == "" || out == "-" {
				return write(cmd.OutOrStdout())
			}
			if err := writeFile(out, write); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s wrote %d week(s) to %s\n", okMark("✓"), weeks, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first week, YYYY-MM-DD (default this week)")
	cmd.Flags().IntVar(&weeks, "weeks", 4, "number of weeks to export (1-104)")
	cmd.Flags().StringVar(&tz, "tz", "", "IANA timezone (default: timezone from config)")
	cmd.Flags().StringVar(&church, "church", "", "church name used in event titles (default: church_name from config)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

// writeFile creates path and writes it through fn. Flush and close errors
// are returned, so a nil error means the data reached the file.
func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := fn(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
