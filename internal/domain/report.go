package domain

import (
	"errors"
	"time"
)

var (
	ErrReportNotFound    = errors.New("report not found")
	ErrUnknownLeader     = errors.New("unknown leader")
	ErrEmptyReport       = errors.New("empty report")
	ErrInvalidAttendance = errors.New("invalid attendance")
	ErrNoSender          = errors.New("no sender can reach leader")
)

// CellReport is one weekly cell-group report. ReportDate is a calendar date
// that always falls on Thursday, Friday or Saturday.
type CellReport struct {
	ID         int64
	LeaderID   string
	ReportDate time.Time
	Attendance int
	Visitors   int
	Notes      string
	Source     string // "slack", "cli"
	ReportedBy string // Slack user ID of whoever submitted, may differ from the leader
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

const (
	ReminderSent   = "sent"
	ReminderFailed = "failed"
)

type ReminderLogEntry struct {
	ID          int64
	RunID       string
	LeaderID    string
	Channel     string // sender name: "slack", "telegram"
	WindowStart time.Time
	Status      string
	Error       string
	SentAt      time.Time
}
