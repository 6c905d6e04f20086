package telegram

import (
	"context"
	"errors"
	"testing"

	"cellreport/internal/config"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func TestSenderSend(t *testing.T) {
	bot := &fakeBot{}
	s := newSenderWith(bot)
	carla := config.Leader{ID: "carla", TelegramChatID: 42}

	if s.Name() != "telegram" {
		t.Fatalf("unexpected name %q", s.Name())
	}
	if !s.CanReach(carla) || s.CanReach(config.Leader{ID: "ana"}) {
		t.Fatal("expected only leaders with a chat ID to be reachable")
	}
	if err := s.Send(context.Background(), carla, "please report"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(bot.sent) != 1 || bot.sent[0].ChatID != 42 || bot.sent[0].Text != "please report" {
		t.Fatalf("unexpected sent messages: %+v", bot.sent)
	}
	if bot.sent[0].ParseMode != "" {
		t.Fatalf("expected plain text message, got parse mode %q", bot.sent[0].ParseMode)
	}
}

func TestSenderErrors(t *testing.T) {
	bot := &fakeBot{err: errors.New("Forbidden: bot was blocked by the user")}
	s := newSenderWith(bot)
	carla := config.Leader{ID: "carla", TelegramChatID: 42}

	if err := s.Send(context.Background(), carla, "hi"); err == nil {
		t.Fatal("expected API error to be returned")
	}
	if err := s.Send(context.Background(), config.Leader{ID: "ana"}, "hi"); err == nil {
		t.Fatal("expected error for leader without chat")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := newSenderWith(&fakeBot{}).Send(ctx, carla, "hi"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
