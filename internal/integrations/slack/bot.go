package slackbot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cellreport/internal/config"
	"cellreport/internal/domain"
	"cellreport/internal/httpx"
	"cellreport/internal/reminder"
	"cellreport/internal/reportwindow"
	"cellreport/internal/storage/sqlite"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"
)

const actionRemindMissing = "remind_missing"

// NewClient builds a Slack Web API client that can also open a Socket Mode
// connection.
func NewClient(cfg config.Config) *slack.Client {
	return slack.New(
		cfg.SlackBotToken,
		slack.OptionAppLevelToken(cfg.SlackAppToken),
		slack.OptionHTTPClient(httpx.ExternalHTTPClient()),
	)
}

// Bot serves the slash commands and block actions of the cell-report app.
type Bot struct {
	api          *slack.Client
	cfg          config.Config
	db           *sql.DB
	svc          *reminder.Service
	log          *zap.Logger
	userIDs      map[string]string // leader ID -> Slack user ID
	leaderByUser map[string]string // Slack user ID -> leader ID
}

func NewBot(api *slack.Client, cfg config.Config, db *sql.DB, svc *reminder.Service, userIDs map[string]string, log *zap.Logger) *Bot {
	if log == nil {
		log = zap.NewNop()
	}
	leaderByUser := make(map[string]string, len(userIDs))
	for leaderID, userID := range userIDs {
		leaderByUser[userID] = leaderID
	}
	return &Bot{
		api:          api,
		cfg:          cfg,
		db:           db,
		svc:          svc,
		log:          log.Named("slack"),
		userIDs:      userIDs,
		leaderByUser: leaderByUser,
	}
}

// Run connects over Socket Mode and dispatches events until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	client := socketmode.New(b.api)

	go func() {
		for {
			var evt socketmode.Event
			select {
			case <-ctx.Done():
				return
			case evt = <-client.Events:
			}
			switch evt.Type {
			case socketmode.EventTypeConnected:
				b.log.Info("slack bot connected via socket mode")
			case socketmode.EventTypeSlashCommand:
				client.Ack(*evt.Request)
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				b.log.Info("slash command received",
					zap.String("command", cmd.Command),
					zap.String("user", cmd.UserID),
					zap.String("channel", cmd.ChannelID))
				go b.handleSlashCommand(ctx, cmd)
			case socketmode.EventTypeEventsAPI:
				client.Ack(*evt.Request)
			case socketmode.EventTypeInteractive:
				client.Ack(*evt.Request)
				callback, ok := evt.Data.(slack.InteractionCallback)
				if !ok {
					continue
				}
				go b.handleInteraction(ctx, callback)
			}
		}
	}()

	err := client.RunContext(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// PostSummary posts text to the report channel; it is a no-op when none is configured.
func (b *Bot) PostSummary(ctx context.Context, text string) error {
	if b.cfg.ReportChannelID == "" {
		return nil
	}
	_, _, err := b.api.PostMessageContext(ctx, b.cfg.ReportChannelID, slack.MsgOptionText(text, false))
	return err
}

func (b *Bot) handleSlashCommand(ctx context.Context, cmd slack.SlashCommand) {
	switch cmd.Command {
	case "/report":
		b.handleReport(ctx, cmd)
	case "/report-status":
		b.handleReportStatus(ctx, cmd)
	case "/remind":
		b.handleRemind(ctx, cmd.ChannelID, cmd.UserID)
	case "/help":
		b.postEphemeral(ctx, cmd.ChannelID, cmd.UserID, helpText(b.cfg.IsManagerID(cmd.UserID)))
	}
}

func (b *Bot) handleReport(ctx context.Context, cmd slack.SlashCommand) {
	if strings.TrimSpace(cmd.Text) == "" {
		b.postEphemeral(ctx, cmd.ChannelID, cmd.UserID, reportUsage)
		return
	}
	if rest, ok := deleteSubcommand(cmd.Text); ok {
		msg, err := b.deleteReport(cmd.UserID, rest)
		if err != nil {
			b.log.Info("report delete rejected", zap.String("user", cmd.UserID), zap.Error(err))
		}
		b.postEphemeral(ctx, cmd.ChannelID, cmd.UserID, msg)
		return
	}

	loc := b.svc.Location()
	in, err := parseReportText(cmd.Text, b.svc.Now(), loc)
	if err != nil {
		b.postEphemeral(ctx, cmd.ChannelID, cmd.UserID, fmt.Sprintf("%v\n%s", err, reportUsage))
		b.log.Info("report parse error", zap.String("user", cmd.UserID), zap.Error(err))
		return
	}

	leader, err := b.reporterFor(cmd.UserID, in.Delegate)
	if err != nil {
		b.postEphemeral(ctx, cmd.ChannelID, cmd.UserID, err.Error())
		b.log.Info("report rejected", zap.String("user", cmd.UserID), zap.Error(err))
		return
	}

	stored, created, err := b.storeReport(cmd.UserID, leader, in)
	if err != nil {
		b.postEphemeral(ctx, cmd.ChannelID, cmd.UserID, fmt.Sprintf("Error saving report: %v", err))
		b.log.Error("report save error", zap.String("user", cmd.UserID), zap.String("leader", leader.ID), zap.Error(err))
		return
	}
	b.postEphemeral(ctx, cmd.ChannelID, cmd.UserID, reportConfirmation(leader, stored, in.GivenDate, created))
	b.log.Info("report saved",
		zap.String("user", cmd.UserID),
		zap.String("leader", leader.ID),
		zap.String("date", reportwindow.DateKey(stored.ReportDate)),
		zap.Bool("created", created))
}

// storeReport upserts the report and reads back the stored row, so the
// confirmation shows what other readers will see.
func (b *Bot) storeReport(userID string, leader config.Leader, in reportInput) (domain.CellReport, bool, error) {
	created, err := sqlite.UpsertReport(b.db, domain.CellReport{
		LeaderID:   leader.ID,
		ReportDate: in.Date,
		Attendance: in.Attendance,
		Visitors:   in.Visitors,
		Notes:      in.Notes,
		Source:     "slack",
		ReportedBy: userID,
	})
	if err != nil {
		return domain.CellReport{}, false, err
	}
	stored, err := sqlite.GetReport(b.db, leader.ID, in.Date)
	if err != nil {
		return domain.CellReport{}, created, fmt.Errorf("read back report: %w", err)
	}
	return stored, created, nil
}

// deleteReport handles "/report delete {leader-id} YYYY-MM-DD". It returns
// the message for the caller; err is set when nothing was deleted.
func (b *Bot) deleteReport(userID, text string) (string, error) {
	if !b.cfg.IsManagerID(userID) {
		return "Sorry, only managers can delete reports.", errors.New("delete denied")
	}
	leaderID, date, err := parseDeleteText(text)
	if err != nil {
		return fmt.Sprintf("%v\n%s", err, deleteUsage), err
	}
	leader, ok := b.cfg.LeaderByID(leaderID)
	if !ok {
		err := fmt.Errorf("%w '%s'", domain.ErrUnknownLeader, leaderID)
		return fmt.Sprintf("%v. Known leaders: %s", err, strings.Join(b.cfg.LeaderIDs(), ", ")), err
	}
	if err := sqlite.DeleteReport(b.db, leader.ID, date); err != nil {
		if errors.Is(err, domain.ErrReportNotFound) {
			return fmt.Sprintf("No report for %s dated %s.", leader.DisplayName(), date.Format("Mon Jan 2")), err
		}
		b.log.Error("report delete error", zap.String("leader", leader.ID), zap.Error(err))
		return fmt.Sprintf("Error deleting report: %v", err), err
	}
	b.log.Info("report deleted",
		zap.String("user", userID),
		zap.String("leader", leader.ID),
		zap.String("date", reportwindow.DateKey(date)))
	return fmt.Sprintf("Deleted report for %s dated %s.", leader.DisplayName(), date.Format("Mon Jan 2")), nil
}

// reporterFor returns the leader a /report from userID is filed for.
// Managers may file for any leader with a {leader-id} prefix.
func (b *Bot) reporterFor(userID, delegate string) (config.Leader, error) {
	if delegate != "" {
		if !b.cfg.IsManagerID(userID) {
			return config.Leader{}, errors.New("only managers can report on behalf of another leader")
		}
		leader, ok := b.cfg.LeaderByID(delegate)
		if !ok {
			return config.Leader{}, fmt.Errorf("%w '%s'. Known leaders: %s", domain.ErrUnknownLeader, delegate, strings.Join(b.cfg.LeaderIDs(), ", "))
		}
		return leader, nil
	}
	leaderID, ok := b.leaderByUser[userID]
	if !ok {
		return config.Leader{}, fmt.Errorf("%w: you are not registered as a cell leader", domain.ErrUnknownLeader)
	}
	leader, ok := b.cfg.LeaderByID(leaderID)
	if !ok {
		return config.Leader{}, fmt.Errorf("%w '%s'", domain.ErrUnknownLeader, leaderID)
	}
	return leader, nil
}

func (b *Bot) handleReportStatus(ctx context.Context, cmd slack.SlashCommand) {
	if !b.cfg.IsManagerID(cmd.UserID) {
		b.postEphemeral(ctx, cmd.ChannelID, cmd.UserID, "Sorry, only managers can use this command.")
		b.log.Info("report-status denied", zap.String("user", cmd.UserID))
		return
	}

	ref := b.svc.Now()
	if arg := strings.TrimSpace(cmd.Text); arg != "" {
		d, err := reportwindow.ParseDate(arg)
		if err != nil {
			b.postEphemeral(ctx, cmd.ChannelID, cmd.UserID, "Usage: /report-status [YYYY-MM-DD]")
			return
		}
		ref = d
	}

	status, err := b.svc.Status(ctx, ref)
	if err != nil {
		b.postEphemeral(ctx, cmd.ChannelID, cmd.UserID, fmt.Sprintf("Error loading status: %v", err))
		b.log.Error("report-status load error", zap.Error(err))
		return
	}

	blocks := buildStatusBlocks(status, b.userIDs)
	if _, err := b.api.PostEphemeralContext(ctx, cmd.ChannelID, cmd.UserID, slack.MsgOptionBlocks(blocks...)); err != nil {
		b.log.Error("report-status post error", zap.Error(err))
		b.postEphemeral(ctx, cmd.ChannelID, cmd.UserID, "Error rendering report status.")
		return
	}
	b.log.Info("report-status", zap.String("window", status.Window.String()), zap.Int("missing", status.MissingCount()))
}

func (b *Bot) handleRemind(ctx context.Context, channelID, userID string) {
	if !b.cfg.IsManagerID(userID) {
		b.postEphemeral(ctx, channelID, userID, "Sorry, only managers can use this command.")
		b.log.Info("remind denied", zap.String("user", userID))
		return
	}
	result, err := b.svc.Run(ctx, reminder.RunOptions{})
	summary := reminder.FormatRunSummary(result)
	if err != nil {
		summary += fmt.Sprintf("\nError: %v", err)
		b.log.Error("manual reminder run error", zap.String("run_id", result.RunID), zap.Error(err))
	}
	b.postEphemeral(ctx, channelID, userID, summary)
	b.log.Info("manual reminder run", zap.String("user", userID), zap.String("run_id", result.RunID), zap.Bool("skipped", result.Skipped))
}

func (b *Bot) handleInteraction(ctx context.Context, cb slack.InteractionCallback) {
	if cb.Type != slack.InteractionTypeBlockActions || len(cb.ActionCallback.BlockActions) == 0 {
		return
	}
	act := cb.ActionCallback.BlockActions[0]
	channelID := cb.Channel.ID
	if channelID == "" {
		channelID = cb.Container.ChannelID
	}

	switch act.ActionID {
	case actionRemindMissing:
		b.handleRemind(ctx, channelID, cb.User.ID)
	}
}

func (b *Bot) postEphemeral(ctx context.Context, channelID, userID, text string) {
	_, err := b.api.PostEphemeralContext(ctx, channelID, userID, slack.MsgOptionText(text, false))
	if err != nil {
		b.log.Warn("post ephemeral failed", zap.String("channel", channelID), zap.Error(err))
	}
}

const reportUsage = "Usage: /report [YYYY-MM-DD] <attendance> [visitors] [notes]\n" +
	"Example: /report 12 2 Great worship night"

const deleteUsage = "Usage: /report delete {leader-id} YYYY-MM-DD"

// reportConfirmation describes a stored report. given is the date the
// leader typed, zero when it defaulted to today.
func reportConfirmation(leader config.Leader, r domain.CellReport, given time.Time, created bool) string {
	verb := "Recorded"
	if !created {
		verb = "Updated"
	}
	msg := fmt.Sprintf("%s report for %s dated %s: %d attendee(s), %d visitor(s).",
		verb, leader.DisplayName(), r.ReportDate.Format("Mon Jan 2"), r.Attendance, r.Visitors)
	if !given.IsZero() && reportwindow.DateKey(given) != reportwindow.DateKey(r.ReportDate) {
		msg += fmt.Sprintf("\n%s is outside the Thursday-Saturday window, so the report was filed on %s.",
			given.Format("Mon Jan 2"), r.ReportDate.Format("Mon Jan 2"))
	}
	if r.Notes != "" {
		msg += "\nNotes: " + r.Notes
	}
	return msg
}

func buildStatusBlocks(status reminder.WeekStatus, userIDs map[string]string) []slack.Block {
	missing := status.MissingCount()
	blocks := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject(slack.PlainTextType,
				fmt.Sprintf("Cell reports for %s (%d missing)", status.Window, missing),
				false, false),
		),
		slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType, eligibilityLine(status.Eligibility), false, false),
		),
	}

	for _, ls := range status.Leaders {
		name := ls.Leader.DisplayName()
		if uid := userIDs[ls.Leader.ID]; uid != "" {
			name += fmt.Sprintf(" (<@%s>)", uid)
		}
		var text string
		if ls.Submitted {
			text = fmt.Sprintf(":white_check_mark: %s reported %s: %d attendee(s), %d visitor(s)",
				name, ls.ReportDate.Format("Mon Jan 2"), ls.Attendance, ls.Visitors)
		} else {
			text = fmt.Sprintf(":x: %s has not reported", name)
			if ls.RemindersSent > 0 {
				text += fmt.Sprintf(" (reminded %dx)", ls.RemindersSent)
			}
		}
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, text, false, false),
			nil, nil,
		))
	}

	if reported := len(status.Leaders) - missing; reported > 0 {
		attendance, visitors := status.Totals()
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType,
				fmt.Sprintf("Total from %d report(s): *%d* attendee(s), *%d* visitor(s)", reported, attendance, visitors),
				false, false),
		))
	}

	if missing > 0 {
		btn := slack.NewButtonBlockElement(
			actionRemindMissing,
			reportwindow.DateKey(status.Window.Start),
			slack.NewTextBlockObject(slack.PlainTextType, "Remind missing", false, false),
		)
		blocks = append(blocks, slack.NewDividerBlock(), slack.NewActionBlock("", btn))
	}
	return blocks
}

func eligibilityLine(e reportwindow.Eligibility) string {
	if e.Allowed {
		return "Reminders: *open* (" + e.Reason + ")"
	}
	return fmt.Sprintf("Reminders: *closed* (%s, next %s)", e.Reason, e.FormatNext())
}

func helpText(isManager bool) string {
	lines := []string{
		"*Cell Report Commands*",
		"",
		"`/report [YYYY-MM-DD] <attendance> [visitors] [notes]` - Submit this week's cell report.",
		">*Example:* `/report 12 2 Great worship night`",
		">Reports are filed Thursday to Saturday. Other dates move to the nearest report day.",
		"`/help` - Show this help.",
	}
	if isManager {
		lines = append(lines,
			"",
			"*Manager Commands*",
			"",
			"`/report {leader-id} <attendance> ...` - Report on behalf of a leader.",
			"`/report delete {leader-id} YYYY-MM-DD` - Delete a leader's report.",
			"`/report-status [YYYY-MM-DD]` - Who has reported for the week, with a remind button.",
			"`/remind` - Send reminders to leaders who have not reported (Thursday 22:00 to Sunday).",
		)
	}
	return strings.Join(lines, "\n")
}

