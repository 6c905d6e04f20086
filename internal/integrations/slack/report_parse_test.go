package slackbot

import (
	"errors"
	"testing"
	"time"

	"cellreport/internal/domain"

	_ "time/tzdata"
)

func saoPaulo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestParseReportTextDefaultsToToday(t *testing.T) {
	loc := saoPaulo(t)
	today := time.Date(2024, 1, 19, 20, 30, 0, 0, loc) // Friday

	in, err := parseReportText("12 3 Great worship night", today, loc)
	if err != nil {
		t.Fatalf("parseReportText failed: %v", err)
	}
	if in.Attendance != 12 || in.Visitors != 3 || in.Notes != "Great worship night" {
		t.Fatalf("unexpected parse: %+v", in)
	}
	if got := in.Date.Format("2006-01-02"); got != "2024-01-19" {
		t.Fatalf("expected Friday date, got %s", got)
	}
	if !in.GivenDate.IsZero() || in.Delegate != "" {
		t.Fatalf("expected no explicit date or delegate: %+v", in)
	}
}

func TestParseReportTextNormalizesDate(t *testing.T) {
	loc := saoPaulo(t)
	today := time.Date(2024, 1, 19, 9, 0, 0, 0, loc)

	tests := []struct {
		text string
		want string
	}{
		{"2024-01-16 10", "2024-01-18"}, // Tuesday -> Thursday
		{"2024-01-21 10", "2024-01-20"}, // Sunday -> Saturday
		{"2024-01-20 10", "2024-01-20"},
	}
	for _, tt := range tests {
		in, err := parseReportText(tt.text, today, loc)
		if err != nil {
			t.Fatalf("%q: %v", tt.text, err)
		}
		if got := in.Date.Format("2006-01-02"); got != tt.want {
			t.Fatalf("%q: expected %s, got %s", tt.text, tt.want, got)
		}
		if in.GivenDate.IsZero() {
			t.Fatalf("%q: expected given date to be kept", tt.text)
		}
	}
}

func TestParseReportTextTodayOutsideWindow(t *testing.T) {
	loc := saoPaulo(t)
	monday := time.Date(2024, 1, 22, 8, 0, 0, 0, loc)

	in, err := parseReportText("8", monday, loc)
	if err != nil {
		t.Fatalf("parseReportText failed: %v", err)
	}
	if got := in.Date.Format("2006-01-02"); got != "2024-01-25" {
		t.Fatalf("expected Monday to move to Thursday, got %s", got)
	}
	if in.Visitors != 0 || in.Notes != "" {
		t.Fatalf("unexpected optional fields: %+v", in)
	}
}

func TestParseReportTextDelegateAndNotesWithoutVisitors(t *testing.T) {
	loc := saoPaulo(t)
	today := time.Date(2024, 1, 18, 23, 0, 0, 0, loc)

	in, err := parseReportText("{ bruno } 2024-01-18 9 rainy night, few came", today, loc)
	if err != nil {
		t.Fatalf("parseReportText failed: %v", err)
	}
	if in.Delegate != "bruno" {
		t.Fatalf("expected delegate bruno, got %q", in.Delegate)
	}
	if in.Attendance != 9 || in.Visitors != 0 || in.Notes != "rainy night, few came" {
		t.Fatalf("unexpected parse: %+v", in)
	}
}

func TestParseReportTextErrors(t *testing.T) {
	loc := saoPaulo(t)
	today := time.Date(2024, 1, 19, 9, 0, 0, 0, loc)

	if _, err := parseReportText("   ", today, loc); !errors.Is(err, domain.ErrEmptyReport) {
		t.Fatalf("expected ErrEmptyReport, got %v", err)
	}
	if _, err := parseReportText("{ana}", today, loc); !errors.Is(err, domain.ErrEmptyReport) {
		t.Fatalf("expected ErrEmptyReport for delegate only, got %v", err)
	}
	for _, text := range []string{"lots", "-3", "2024-01-19", "2024-01-19 many"} {
		if _, err := parseReportText(text, today, loc); !errors.Is(err, domain.ErrInvalidAttendance) {
			t.Fatalf("%q: expected ErrInvalidAttendance, got %v", text, err)
		}
	}
	if _, err := parseReportText("2024-02-30 10", today, loc); err == nil {
		t.Fatal("expected invalid calendar date to be rejected")
	}
}

func TestDeleteSubcommand(t *testing.T) {
	rest, ok := deleteSubcommand("  DELETE {ana}  2024-01-19 ")
	if !ok || rest != "{ana} 2024-01-19" {
		t.Fatalf("unexpected split: %q %v", rest, ok)
	}
	if _, ok := deleteSubcommand("12 2 deleted nothing"); ok {
		t.Fatal("a normal report must not be read as a delete")
	}
}

func TestParseDeleteText(t *testing.T) {
	leaderID, date, err := parseDeleteText("{ana} 2024-01-16")
	if err != nil {
		t.Fatalf("parseDeleteText failed: %v", err)
	}
	if leaderID != "ana" || date.Format("2006-01-02") != "2024-01-18" {
		t.Fatalf("unexpected parse: %s %s", leaderID, date.Format("2006-01-02"))
	}
	for _, text := range []string{"", "2024-01-16", "{ana}", "{ana} 2024-02-30", "{ana} 2024-01-16 extra"} {
		if _, _, err := parseDeleteText(text); err == nil {
			t.Fatalf("expected error for %q", text)
		}
	}
}
