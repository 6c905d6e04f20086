package reportwindow

import (
	"fmt"
	"time"
)

// DefaultTimezone is the civil zone every church deployment reports in
// unless configured otherwise.
const DefaultTimezone = "America/Sao_Paulo"

const dateLayout = "2006-01-02"

// ReportWindow is the Thursday..Saturday span of one ISO week during which
// cell reports are dated. Both bounds are inclusive calendar dates.
//
// Calendar dates in this package are midnight UTC carrying the civil
// year/month/day. Midnight does not exist on some days in zones whose DST
// starts at 00:00, so dates are never anchored in the civil zone itself.
type ReportWindow struct {
	Start time.Time
	End   time.Time
}

// WeekStartMonday returns the Monday on or before the civil date of d.
func WeekStartMonday(d time.Time) time.Time {
	dow := int(d.Weekday())
	daysToSubtract := dow - 1
	if dow == 0 {
		daysToSubtract = 6
	}
	return addDays(d, -daysToSubtract)
}

// ReportWindowFor returns the reporting window of the ISO week containing d.
// Every date from Monday to Sunday of a week maps to the same window.
func ReportWindowFor(d time.Time) ReportWindow {
	monday := WeekStartMonday(d)
	return ReportWindow{
		Start: addDays(monday, 3),
		End:   addDays(monday, 5),
	}
}

// NormalizeReportDate moves d onto a day reports may carry. Thursday to
// Saturday are kept; Sunday falls back to the Saturday before it, while
// Monday to Wednesday move forward to the Thursday of the same week.
func NormalizeReportDate(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Thursday, time.Friday, time.Saturday:
		return DateOf(d)
	case time.Sunday:
		return addDays(d, -1)
	default:
		return addDays(d, 4-isoWeekday(d.Weekday()))
	}
}

// Contains reports whether the calendar date of d lies in [Start, End].
func (w ReportWindow) Contains(d time.Time) bool {
	key := DateKey(d)
	return key >= DateKey(w.Start) && key <= DateKey(w.End)
}

// Days returns Start, Start+1 and End.
func (w ReportWindow) Days() []time.Time {
	var days []time.Time
	for d := w.Start; DateKey(d) <= DateKey(w.End); d = addDays(d, 1) {
		days = append(days, d)
	}
	return days
}

func (w ReportWindow) String() string {
	return fmt.Sprintf("%s - %s", w.Start.Format("Mon Jan 2"), w.End.Format("Mon Jan 2"))
}

// DateOf returns the calendar date of t as observed in t's location.
func DateOf(t time.Time) time.Time {
	return addDays(t, 0)
}

// DateKey formats the calendar date of t as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return d, nil
}

func addDays(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+n, 0, 0, 0, 0, time.UTC)
}

// OpensAt returns when reminders open for this window: Start at 22:00 in loc.
func (w ReportWindow) OpensAt(loc *time.Location) time.Time {
	y, m, d := w.Start.Date()
	// Thursday 00:00 is always before the opening, so NextAvailable is set.
	return *EvaluateCivil(CivilInstant{Year: y, Month: m, Day: d, Location: loc}).NextAvailable
}

// isoWeekday numbers Monday=1 .. Sunday=7.
func isoWeekday(wd time.Weekday) int {
	if wd == time.Sunday {
		return 7
	}
	return int(wd)
}
