package slackbot

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cellreport/internal/domain"
	"cellreport/internal/reportwindow"
)

// Manager-only delegated reporting syntax: /report {leader-id} ...
var delegatedLeaderRegex = regexp.MustCompile(`^\{([^{}]+)\}\s*`)

var dateTokenRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type reportInput struct {
	Delegate   string
	Date       time.Time // normalized into the Thursday-Saturday window
	GivenDate  time.Time // before normalization, zero when defaulted to today
	Attendance int
	Visitors   int
	Notes      string
}

// parseReportText parses "[{leader-id}] [YYYY-MM-DD] <attendance> [visitors] [notes...]".
// today is used when no date is given.
func parseReportText(text string, today time.Time, loc *time.Location) (reportInput, error) {
	var in reportInput
	text = strings.TrimSpace(text)
	if match := delegatedLeaderRegex.FindStringSubmatch(text); len(match) > 1 {
		in.Delegate = strings.TrimSpace(match[1])
		text = strings.TrimSpace(text[len(match[0]):])
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return in, domain.ErrEmptyReport
	}

	date := reportwindow.DateOf(today.In(loc))
	if dateTokenRegex.MatchString(fields[0]) {
		d, err := reportwindow.ParseDate(fields[0])
		if err != nil {
			return in, fmt.Errorf("invalid date '%s': %w", fields[0], err)
		}
		date = d
		in.GivenDate = d
		fields = fields[1:]
	}
	in.Date = reportwindow.NormalizeReportDate(date)

	if len(fields) == 0 {
		return in, fmt.Errorf("attendance is required: %w", domain.ErrInvalidAttendance)
	}
	attendance, err := strconv.Atoi(fields[0])
	if err != nil || attendance < 0 {
		return in, fmt.Errorf("'%s' is not a valid attendance: %w", fields[0], domain.ErrInvalidAttendance)
	}
	in.Attendance = attendance
	fields = fields[1:]

	if len(fields) > 0 {
		if visitors, err := strconv.Atoi(fields[0]); err == nil && visitors >= 0 {
			in.Visitors = visitors
			fields = fields[1:]
		}
	}
	in.Notes = strings.Join(fields, " ")
	return in, nil
}

// deleteSubcommand reports whether text starts with the "delete" keyword and
// returns the remainder.
func deleteSubcommand(text string) (string, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.EqualFold(fields[0], "delete") {
		return "", false
	}
	return strings.TrimSpace(strings.Join(fields[1:], " ")), true
}

// parseDeleteText parses "{leader-id} YYYY-MM-DD". The date is normalized the
// same way reports are filed, so a Sunday names the Saturday report.
func parseDeleteText(text string) (string, time.Time, error) {
	text = strings.TrimSpace(text)
	match := delegatedLeaderRegex.FindStringSubmatch(text)
	if len(match) < 2 {
		return "", time.Time{}, errors.New("a {leader-id} is required")
	}
	leaderID := strings.TrimSpace(match[1])
	fields := strings.Fields(text[len(match[0]):])
	if len(fields) != 1 || !dateTokenRegex.MatchString(fields[0]) {
		return "", time.Time{}, errors.New("a single YYYY-MM-DD date is required")
	}
	d, err := reportwindow.ParseDate(fields[0])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid date '%s': %w", fields[0], err)
	}
	return leaderID, reportwindow.NormalizeReportDate(d), nil
}
