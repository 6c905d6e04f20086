package reminder

import (
	"context"
	"fmt"
	"time"

	"cellreport/internal/config"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Notifier posts a run summary somewhere humans will see it.
type Notifier func(ctx context.Context, summary string) error

// Scheduler runs the reminder job on a cron schedule evaluated in the
// church's civil zone. The eligibility gate still applies to every run.
type Scheduler struct {
	svc      *Service
	spec     string
	schedule cron.Schedule
	loc      *time.Location
	notify   Notifier
	log      *zap.Logger
}

func NewScheduler(svc *Service, spec string, log *zap.Logger, notify Notifier) (*Scheduler, error) {
	sched, err := config.ParseReminderSchedule(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid reminder_schedule '%s': %w", spec, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		svc:      svc,
		spec:     spec,
		schedule: sched,
		loc:      svc.Location(),
		notify:   notify,
		log:      log,
	}, nil
}

// Run blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("reminder scheduler started", zap.String("cron", s.spec), zap.String("timezone", s.loc.String()))
	for {
		now := s.svc.now().In(s.loc)
		next := s.schedule.Next(now)
		wait := next.Sub(now)
		s.log.Info("next reminder run",
			zap.String("at", next.Format("Mon Jan 2 15:04")),
			zap.Duration("in", wait.Round(time.Minute)))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("reminder scheduler stopping")
			return
		case <-timer.C:
		}
		s.runOnce(ctx)
	}
}

func (s *Scheduler) runOnce(ctx context.Context) RunResult {
	result, err := s.svc.Run(ctx, RunOptions{})
	if err != nil {
		s.log.Error("reminder run error", zap.String("run_id", result.RunID), zap.Error(err))
	}
	summary := FormatRunSummary(result)
	s.log.Info("reminder run finished", zap.String("run_id", result.RunID), zap.String("summary", summary))

	if s.notify != nil {
		if err := s.notify(ctx, summary); err != nil {
			s.log.Warn("reminder summary post failed", zap.Error(err))
		}
	}
	return result
}
