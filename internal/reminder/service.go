package reminder

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"cellreport/internal/config"
	"cellreport/internal/domain"
	"cellreport/internal/reportwindow"
	"cellreport/internal/storage/sqlite"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sender delivers a reminder text to a leader over one messaging provider.
type Sender interface {
	Name() string
	CanReach(l config.Leader) bool
	Send(ctx context.Context, l config.Leader, text string) error
}

// Service answers weekly status queries and runs the reminder job. Both
// go through the same reportwindow calculator.
type Service struct {
	db              *sql.DB
	calc            *reportwindow.Calculator
	leaders         []config.Leader
	timezone        string
	loc             *time.Location
	churchName      string
	reportChannelID string
	senders         []Sender
	log             *zap.Logger
	now             func() time.Time
}

func NewService(cfg config.Config, db *sql.DB, calc *reportwindow.Calculator, log *zap.Logger, senders ...Sender) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		db:              db,
		calc:            calc,
		leaders:         cfg.Leaders,
		timezone:        cfg.Timezone,
		loc:             loc,
		churchName:      cfg.ChurchName,
		reportChannelID: cfg.ReportChannelID,
		senders:         senders,
		log:             log,
		now:             time.Now,
	}
}

// AddSender appends a sender; earlier senders win when several can reach a leader.
func (s *Service) AddSender(sender Sender) {
	s.senders = append(s.senders, sender)
}

func (s *Service) Location() *time.Location { return s.loc }

// Now returns the current instant on the service's civil clock.
func (s *Service) Now() time.Time { return s.now().In(s.loc) }

type LeaderStatus struct {
	Leader        config.Leader
	Submitted     bool
	ReportDate    time.Time
	Attendance    int
	Visitors      int
	RemindersSent int
}

type WeekStatus struct {
	Reference   time.Time
	Window      reportwindow.ReportWindow
	Eligibility reportwindow.Eligibility
	Leaders     []LeaderStatus
}

// Totals sums attendance and visitors over the leaders that reported.
func (w WeekStatus) Totals() (attendance, visitors int) {
	for _, l := range w.Leaders {
		attendance += l.Attendance
		visitors += l.Visitors
	}
	return attendance, visitors
}

func (w WeekStatus) MissingCount() int {
	n := 0
	for _, l := range w.Leaders {
		if !l.Submitted {
			n++
		}
	}
	return n
}

// Status reports the window containing ref, the current reminder
// eligibility and every leader's submission state for that window.
func (s *Service) Status(ctx context.Context, ref time.Time) (WeekStatus, error) {
	if err := ctx.Err(); err != nil {
		return WeekStatus{}, err
	}
	status := WeekStatus{
		Reference:   ref,
		Window:      reportwindow.ReportWindowFor(ref),
		Eligibility: s.calc.EvaluateReminderEligibility(s.now(), s.timezone),
	}

	reports, err := sqlite.GetReportsByDateRange(s.db, status.Window.Start, status.Window.End)
	if err != nil {
		return status, fmt.Errorf("load submissions: %w", err)
	}
	// Reports come ordered by date, so the last one per leader is the latest.
	latest := make(map[string]domain.CellReport, len(reports))
	for _, r := range reports {
		latest[r.LeaderID] = r
	}
	counts, err := sqlite.CountRemindersSent(s.db, status.Window.Start)
	if err != nil {
		return status, fmt.Errorf("load reminder counts: %w", err)
	}

	for _, l := range s.leaders {
		r, ok := latest[l.ID]
		status.Leaders = append(status.Leaders, LeaderStatus{
			Leader:        l,
			Submitted:     ok,
			ReportDate:    r.ReportDate,
			Attendance:    r.Attendance,
			Visitors:      r.Visitors,
			RemindersSent: counts[l.ID],
		})
	}
	return status, nil
}

// ReminderHistory returns the reminder log of the window containing ref.
func (s *Service) ReminderHistory(ctx context.Context, ref time.Time) (reportwindow.ReportWindow, []domain.ReminderLogEntry, error) {
	w := reportwindow.ReportWindowFor(ref)
	if err := ctx.Err(); err != nil {
		return w, nil, err
	}
	entries, err := sqlite.GetReminderLogsByWindow(s.db, w.Start)
	if err != nil {
		return w, nil, fmt.Errorf("load reminder log: %w", err)
	}
	return w, entries, nil
}

type RunOptions struct {
	DryRun bool
}

type Delivery struct {
	Leader  config.Leader
	Channel string
	Err     error
}

type RunResult struct {
	RunID       string
	StartedAt   time.Time
	Window      reportwindow.ReportWindow
	Eligibility reportwindow.Eligibility
	Skipped     bool
	DryRun      bool
	Missing     []config.Leader
	Sent        []Delivery
	Failed      []Delivery
}

// Run sends a reminder to every leader without a report in the current
// window, provided reminders are allowed right now. Individual delivery
// failures are recorded in the result and the reminder log; only storage
// errors and cancellation are returned.
func (s *Service) Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	now := s.now()
	result := RunResult{
		RunID:       uuid.NewString(),
		StartedAt:   now,
		Window:      reportwindow.ReportWindowFor(now.In(s.loc)),
		Eligibility: s.calc.EvaluateReminderEligibility(now, s.timezone),
		DryRun:      opts.DryRun,
	}
	log := s.log.With(zap.String("run_id", result.RunID), zap.String("window", result.Window.String()))

	if !result.Eligibility.Allowed {
		result.Skipped = true
		log.Info("reminder run skipped",
			zap.String("reason", result.Eligibility.Reason),
			zap.String("next", result.Eligibility.FormatNext()))
		return result, nil
	}

	submitted, err := sqlite.SubmittedLeaderIDs(s.db, s.leaderIDs(), result.Window.Start, result.Window.End)
	if err != nil {
		return result, fmt.Errorf("load submissions: %w", err)
	}
	for _, l := range s.leaders {
		if _, ok := submitted[l.ID]; !ok {
			result.Missing = append(result.Missing, l)
		}
	}
	log.Info("reminder run started",
		zap.Int("leaders", len(s.leaders)),
		zap.Int("missing", len(result.Missing)),
		zap.Bool("dry_run", opts.DryRun))

	if opts.DryRun || len(result.Missing) == 0 {
		return result, nil
	}

	var entries []domain.ReminderLogEntry
	var runErr error
	for _, l := range result.Missing {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		d := s.deliver(ctx, l, result.Window)
		entry := domain.ReminderLogEntry{
			RunID:       result.RunID,
			LeaderID:    l.ID,
			Channel:     d.Channel,
			WindowStart: result.Window.Start,
			Status:      domain.ReminderSent,
			SentAt:      s.now(),
		}
		if d.Err != nil {
			entry.Status = domain.ReminderFailed
			entry.Error = d.Err.Error()
			result.Failed = append(result.Failed, d)
			log.Warn("reminder delivery failed", zap.String("leader", l.ID), zap.String("channel", d.Channel), zap.Error(d.Err))
		} else {
			result.Sent = append(result.Sent, d)
			log.Debug("reminder delivered", zap.String("leader", l.ID), zap.String("channel", d.Channel))
		}
		entries = append(entries, entry)
	}

	if err := sqlite.InsertReminderLogs(s.db, entries); err != nil {
		return result, fmt.Errorf("record reminder log: %w", err)
	}
	log.Info("reminder run complete", zap.Int("sent", len(result.Sent)), zap.Int("failed", len(result.Failed)))
	return result, runErr
}

func (s *Service) deliver(ctx context.Context, l config.Leader, w reportwindow.ReportWindow) Delivery {
	for _, sender := range s.senders {
		if !sender.CanReach(l) {
			continue
		}
		err := sender.Send(ctx, l, ReminderText(l, w, s.churchName, s.reportChannelID))
		return Delivery{Leader: l, Channel: sender.Name(), Err: err}
	}
	return Delivery{Leader: l, Err: fmt.Errorf("%s: %w", l.ID, domain.ErrNoSender)}
}

func (s *Service) leaderIDs() []string {
	ids := make([]string, 0, len(s.leaders))
	for _, l := range s.leaders {
		ids = append(ids, l.ID)
	}
	return ids
}

// ReminderText is the message a leader receives when their report is missing.
func ReminderText(l config.Leader, w reportwindow.ReportWindow, churchName, reportChannelID string) string {
	cell := ""
	if l.Cell != "" {
		cell = fmt.Sprintf(" for %s", l.Cell)
	}
	channelRef := ""
	if reportChannelID != "" {
		channelRef = fmt.Sprintf(" You can also report in <#%s>.", reportChannelID)
	}
	return fmt.Sprintf(
		"Hi %s! Friendly reminder from %s to submit the cell report%s for this week (%s - %s) using `/report`.%s\n"+
			"Example: `/report 12 2 Great worship night`  (attendance, visitors, notes)",
		l.Name, churchName, cell,
		w.Start.Format("Mon Jan 2"), w.End.Format("Mon Jan 2"),
		channelRef,
	)
}

// FormatRunSummary returns a human-readable summary of a RunResult.
func FormatRunSummary(r RunResult) string {
	if r.Skipped {
		return fmt.Sprintf("Reminders not sent: %s (next: %s).", r.Eligibility.Reason, r.Eligibility.FormatNext())
	}
	if len(r.Missing) == 0 {
		return fmt.Sprintf("Everyone has reported for %s.", r.Window)
	}
	if r.DryRun {
		return fmt.Sprintf("Dry run for %s: %d leader(s) would be reminded: %s.",
			r.Window, len(r.Missing), strings.Join(leaderNames(r.Missing), ", "))
	}

	msg := fmt.Sprintf("Reminders for %s: %d sent", r.Window, len(r.Sent))
	if len(r.Failed) > 0 {
		msg += fmt.Sprintf(", %d failed", len(r.Failed))
	}
	msg += fmt.Sprintf(" (%d missing).", len(r.Missing))
	if len(r.Failed) > 0 {
		var lines []string
		for _, d := range r.Failed {
			lines = append(lines, fmt.Sprintf("%s: %v", d.Leader.DisplayName(), d.Err))
		}
		msg += "\nFailures:\n" + strings.Join(lines, "\n")
	}
	return msg
}

func leaderNames(leaders []config.Leader) []string {
	names := make([]string, 0, len(leaders))
	for _, l := range leaders {
		names = append(names, l.DisplayName())
	}
	return names
}
