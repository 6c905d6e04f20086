// Package calendar exports reporting windows and reminder openings as an
// iCalendar feed that leaders can subscribe to.
package calendar

import (
	"errors"
	"fmt"
	"io"
	"time"

	"cellreport/internal/reportwindow"

	"github.com/emersion/go-ical"
)

const (
	productID = "-//cellreport//Cell Report Windows//EN"
	maxWeeks  = 104
)

var ErrInvalidWeeks = errors.New("weeks must be between 1 and 104")

// Windows returns weeks consecutive reporting windows, starting with the
// window of the week containing from. The civil date of from is read in its
// own location, so pass either a calendar date or an instant already in the
// church's zone.
func Windows(from time.Time, weeks int) ([]reportwindow.ReportWindow, error) {
	if weeks < 1 || weeks > maxWeeks {
		return nil, ErrInvalidWeeks
	}
	monday := reportwindow.WeekStartMonday(from)
	out := make([]reportwindow.ReportWindow, 0, weeks)
	for i := 0; i < weeks; i++ {
		out = append(out, reportwindow.ReportWindowFor(monday.AddDate(0, 0, 7*i)))
	}
	return out, nil
}

// Build returns a VCALENDAR with an all-day event per reporting window and
// a one-hour event at each reminder opening, placed in loc.
func Build(from time.Time, weeks int, loc *time.Location, churchName string) (*ical.Calendar, error) {
	windows, err := Windows(from, weeks)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	stamp := time.Now().UTC()

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText("X-WR-CALNAME", fmt.Sprintf("%s cell reports", churchName))

	for _, w := range windows {
		key := reportwindow.DateKey(w.Start)

		window := ical.NewEvent()
		window.Props.SetText(ical.PropUID, fmt.Sprintf("window-%s@cellreport", key))
		window.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
		window.Props.SetDate(ical.PropDateTimeStart, w.Start)
		window.Props.SetDate(ical.PropDateTimeEnd, w.End.AddDate(0, 0, 1))
		window.Props.SetText(ical.PropSummary, fmt.Sprintf("Cell report window (%s)", churchName))
		window.Props.SetText(ical.PropDescription,
			fmt.Sprintf("Submit this week's cell report with /report between %s.", w))
		window.Props.SetText(ical.PropTransparency, "TRANSPARENT")
		cal.Children = append(cal.Children, window.Component)

		opens := w.OpensAt(loc)
		opening := ical.NewEvent()
		opening.Props.SetText(ical.PropUID, fmt.Sprintf("reminders-%s@cellreport", key))
		opening.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
		opening.Props.SetDateTime(ical.PropDateTimeStart, opens.UTC())
		opening.Props.SetDateTime(ical.PropDateTimeEnd, opens.Add(time.Hour).UTC())
		opening.Props.SetText(ical.PropSummary, "Cell report reminders open")
		opening.Props.SetText(ical.PropDescription,
			"Leaders who have not reported for this week receive a reminder from now until Sunday.")
		cal.Children = append(cal.Children, opening.Component)
	}
	return cal, nil
}

// WriteWindows encodes the calendar built by Build to w.
func WriteWindows(w io.Writer, from time.Time, weeks int, loc *time.Location, churchName string) error {
	cal, err := Build(from, weeks, loc, churchName)
	if err != nil {
		return err
	}
	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("encode calendar: %w", err)
	}
	return nil
}
