package app

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"cellreport/internal/config"
	"cellreport/internal/httpx"
	slackbot "cellreport/internal/integrations/slack"
	"cellreport/internal/integrations/telegram"
	"cellreport/internal/reminder"
	"cellreport/internal/reportwindow"
	"cellreport/internal/storage/sqlite"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Deps holds what serve and the one-shot CLI commands share.
type Deps struct {
	DB      *sql.DB
	Slack   *slack.Client
	UserIDs map[string]string // leader ID -> Slack user ID
	Service *reminder.Service
}

// Build opens the database and the reminder service. With senders set it
// also connects the configured messaging providers; Slack comes first so a
// leader reachable on both gets a DM.
func Build(cfg config.Config, log *zap.Logger, senders bool) (*Deps, error) {
	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	log.Info("database initialized", zap.String("path", cfg.DBPath))

	timeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Debug("external http client configured", zap.Duration("timeout", timeout))

	d := &Deps{DB: db, UserIDs: map[string]string{}}
	d.Service = reminder.NewService(cfg, db, reportwindow.NewCalculator(log), log)
	if !senders {
		return d, nil
	}

	if cfg.SlackBotToken != "" {
		d.Slack = slackbot.NewClient(cfg)
		ids, unresolved, err := slackbot.ResolveLeaderSlackIDs(d.Slack, cfg.Leaders)
		if err != nil {
			log.Warn("slack user lookup failed", zap.Error(err))
		}
		if len(unresolved) > 0 {
			log.Warn("leaders without a slack user", zap.Strings("leaders", unresolved))
		}
		d.UserIDs = ids
		d.Service.AddSender(slackbot.NewDMSender(d.Slack, ids))
	}
	if cfg.TelegramConfigured() {
		tg, err := telegram.NewSender(cfg.TelegramBotToken)
		if err != nil {
			log.Warn("telegram sender disabled", zap.Error(err))
		} else {
			d.Service.AddSender(tg)
		}
	}
	return d, nil
}

func (d *Deps) Close() error {
	return d.DB.Close()
}

// Run starts the reminder scheduler and the Slack bot and blocks until
// ctx is canceled or the process receives SIGINT/SIGTERM.
func Run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	log.Info("config loaded",
		zap.String("church", cfg.ChurchName),
		zap.Int("managers", len(cfg.ManagerSlackIDs)),
		zap.Int("leaders", len(cfg.Leaders)),
		zap.String("timezone", cfg.Timezone),
		zap.String("reminder_schedule", cfg.ReminderSchedule),
		zap.Bool("telegram", cfg.TelegramConfigured()))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := Build(cfg, log, true)
	if err != nil {
		return err
	}
	defer deps.Close()

	bot := slackbot.NewBot(deps.Slack, cfg, deps.DB, deps.Service, deps.UserIDs, log)
	sched, err := reminder.NewScheduler(deps.Service, cfg.ReminderSchedule, log, bot.PostSummary)
	if err != nil {
		return err
	}
	go sched.Run(ctx)

	log.Info("starting cell report bot")
	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
