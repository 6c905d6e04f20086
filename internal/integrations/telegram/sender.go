package telegram

import (
	"context"
	"fmt"

	"cellreport/internal/config"
	"cellreport/internal/httpx"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sender delivers reminders to leaders that configured a Telegram chat ID.
type Sender struct {
	bot messageSender
}

// NewSender connects to the Bot API with token.
func NewSender(token string) (*Sender, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, httpx.ExternalHTTPClient())
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	bot.Debug = false
	return &Sender{bot: bot}, nil
}

func newSenderWith(bot messageSender) *Sender {
	return &Sender{bot: bot}
}

func (s *Sender) Name() string { return "telegram" }

func (s *Sender) CanReach(l config.Leader) bool {
	return l.TelegramChatID != 0
}

// Send posts text as a plain message. The Bot API call is not
// cancellable, so ctx is only checked before sending.
func (s *Sender) Send(ctx context.Context, l config.Leader, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.TelegramChatID == 0 {
		return fmt.Errorf("no telegram chat for leader %s", l.ID)
	}
	msg := tgbotapi.NewMessage(l.TelegramChatID, text)
	msg.DisableWebPagePreview = true
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %d: %w", l.TelegramChatID, err)
	}
	return nil
}
