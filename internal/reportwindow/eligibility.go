package reportwindow

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	reminderOpenHour   = 22
	reminderOpenMinute = reminderOpenHour * 60
	// Sunday stays open through its last representable minute.
	sundayCloseMinute = 23*60 + 59
)

const (
	ReasonAllowed          = "reminders allowed"
	ReasonBeforeWindowOpen = "before window opens: reminders start today at 22:00"
	ReasonWindowClosed     = "window closed, next opens Thursday at 22:00"
	ReasonCheckUnavailable = "eligibility check unavailable, reminders allowed"
)

// CivilInstant is a point in time broken into calendar fields as observed in
// one civil timezone.
type CivilInstant struct {
	Year     int
	Month    time.Month
	Day      int
	Hour     int
	Minute   int
	Location *time.Location
}

// CivilAt converts t into loc's civil calendar fields.
func CivilAt(t time.Time, loc *time.Location) CivilInstant {
	local := t.In(loc)
	return CivilInstant{
		Year:     local.Year(),
		Month:    local.Month(),
		Day:      local.Day(),
		Hour:     local.Hour(),
		Minute:   local.Minute(),
		Location: loc,
	}
}

// Date is the civil calendar date, as midnight UTC.
func (c CivilInstant) Date() time.Time {
	return time.Date(c.Year, c.Month, c.Day, 0, 0, 0, 0, time.UTC)
}

func (c CivilInstant) Weekday() time.Weekday {
	return c.Date().Weekday()
}

func (c CivilInstant) MinutesSinceMidnight() int {
	return c.Hour*60 + c.Minute
}

func (c CivilInstant) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Eligibility is the answer to "may reminders be sent right now".
// NextAvailable is set only when Allowed is false and carries the civil zone
// it was computed in.
type Eligibility struct {
	Allowed       bool
	Reason        string
	NextAvailable *time.Time
}

// LocationLoader resolves a timezone id. time.LoadLocation by default.
type LocationLoader func(name string) (*time.Location, error)

var errNilLocation = errors.New("location loader returned nil location")

// Calculator evaluates reminder eligibility. It holds no mutable state and
// is safe for concurrent use.
type Calculator struct {
	loadLocation LocationLoader
	log          *zap.Logger
}

func NewCalculator(log *zap.Logger) *Calculator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Calculator{loadLocation: time.LoadLocation, log: log}
}

// WithLocationLoader returns a copy of c resolving zones through load.
func (c *Calculator) WithLocationLoader(load LocationLoader) *Calculator {
	cp := *c
	cp.loadLocation = load
	return &cp
}

// EvaluateReminderEligibility decides whether reminders may go out at now,
// judged on the civil clock of timezone (DefaultTimezone when empty).
// Any failure resolving the zone is logged and treated as allowed.
func (c *Calculator) EvaluateReminderEligibility(now time.Time, timezone string) (result Eligibility) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("reminder eligibility check panicked, allowing",
				zap.String("timezone", timezone), zap.Any("panic", r))
			result = failOpen()
		}
	}()

	loc, err := c.loadLocation(timezone)
	if err == nil && loc == nil {
		err = errNilLocation
	}
	if err != nil {
		c.log.Warn("reminder eligibility timezone lookup failed, allowing",
			zap.String("timezone", timezone), zap.Error(err))
		return failOpen()
	}
	return EvaluateCivil(CivilAt(now, loc))
}

// EvaluateCivil applies the weekly reminder rules to an already converted
// civil instant.
func EvaluateCivil(ci CivilInstant) Eligibility {
	minutes := ci.MinutesSinceMidnight()
	switch wd := ci.Weekday(); wd {
	case time.Thursday:
		if minutes >= reminderOpenMinute {
			return allowed()
		}
		return blocked(ReasonBeforeWindowOpen, ci, 0)
	case time.Friday, time.Saturday:
		return allowed()
	case time.Sunday:
		if minutes <= sundayCloseMinute {
			return allowed()
		}
		return blocked(ReasonWindowClosed, ci, 4)
	default:
		return blocked(ReasonWindowClosed, ci, (4-isoWeekday(wd)+7)%7)
	}
}

// FormatNext renders the NextAvailable instant, or "-" when there is none.
func (e Eligibility) FormatNext() string {
	if e.NextAvailable == nil {
		return "-"
	}
	return e.NextAvailable.Format("Mon Jan 2 15:04 MST")
}

func (e Eligibility) String() string {
	if e.Allowed {
		return e.Reason
	}
	return fmt.Sprintf("%s (next: %s)", e.Reason, e.FormatNext())
}

func allowed() Eligibility {
	return Eligibility{Allowed: true, Reason: ReasonAllowed}
}

func failOpen() Eligibility {
	return Eligibility{Allowed: true, Reason: ReasonCheckUnavailable}
}

func blocked(reason string, ci CivilInstant, daysAhead int) Eligibility {
	next := time.Date(ci.Year, ci.Month, ci.Day+daysAhead, reminderOpenHour, 0, 0, 0, ci.location())
	return Eligibility{Allowed: false, Reason: reason, NextAvailable: &next}
}
