package slackbot

import (
	"context"
	"fmt"

	"cellreport/internal/config"

	"github.com/slack-go/slack"
)

type dmPoster interface {
	OpenConversationContext(ctx context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// DMSender delivers reminders as Slack direct messages.
type DMSender struct {
	api     dmPoster
	userIDs map[string]string // leader ID -> Slack user ID
}

func NewDMSender(api dmPoster, userIDs map[string]string) *DMSender {
	return &DMSender{api: api, userIDs: userIDs}
}

func (s *DMSender) Name() string { return "slack" }

func (s *DMSender) CanReach(l config.Leader) bool {
	return s.userIDs[l.ID] != ""
}

func (s *DMSender) Send(ctx context.Context, l config.Leader, text string) error {
	userID := s.userIDs[l.ID]
	if userID == "" {
		return fmt.Errorf("no slack user for leader %s", l.ID)
	}
	channel, _, _, err := s.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users: []string{userID},
	})
	if err != nil {
		return fmt.Errorf("open DM with %s: %w", userID, err)
	}
	if _, _, err := s.api.PostMessageContext(ctx, channel.ID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("post DM to %s: %w", userID, err)
	}
	return nil
}
