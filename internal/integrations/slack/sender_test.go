package slackbot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cellreport/internal/config"

	"github.com/slack-go/slack"
)

type fakePoster struct {
	openErr   error
	postErr   error
	openedFor []string
	postedTo  []string
}

func (f *fakePoster) OpenConversationContext(_ context.Context, params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error) {
	if f.openErr != nil {
		return nil, false, false, f.openErr
	}
	f.openedFor = append(f.openedFor, params.Users...)
	ch := &slack.Channel{}
	ch.ID = "D" + params.Users[0]
	return ch, false, false, nil
}

func (f *fakePoster) PostMessageContext(_ context.Context, channelID string, _ ...slack.MsgOption) (string, string, error) {
	if f.postErr != nil {
		return "", "", f.postErr
	}
	f.postedTo = append(f.postedTo, channelID)
	return channelID, "1705700000.000100", nil
}

func TestDMSenderSend(t *testing.T) {
	poster := &fakePoster{}
	sender := NewDMSender(poster, map[string]string{"ana": "U0ANA0001"})
	ana := config.Leader{ID: "ana", Name: "Ana"}
	bruno := config.Leader{ID: "bruno", Name: "Bruno"}

	if sender.Name() != "slack" {
		t.Fatalf("unexpected sender name %q", sender.Name())
	}
	if !sender.CanReach(ana) || sender.CanReach(bruno) {
		t.Fatal("expected only ana to be reachable")
	}
	if err := sender.Send(context.Background(), ana, "hello"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(poster.openedFor) != 1 || poster.openedFor[0] != "U0ANA0001" {
		t.Fatalf("unexpected DM open: %v", poster.openedFor)
	}
	if len(poster.postedTo) != 1 || poster.postedTo[0] != "DU0ANA0001" {
		t.Fatalf("unexpected post channel: %v", poster.postedTo)
	}
	if err := sender.Send(context.Background(), bruno, "hello"); err == nil {
		t.Fatal("expected error for leader without slack user")
	}
}

func TestDMSenderErrors(t *testing.T) {
	ana := config.Leader{ID: "ana"}

	sender := NewDMSender(&fakePoster{openErr: errors.New("user_not_found")}, map[string]string{"ana": "U0ANA0001"})
	if err := sender.Send(context.Background(), ana, "hi"); err == nil || !strings.Contains(err.Error(), "open DM") {
		t.Fatalf("expected open DM error, got %v", err)
	}

	sender = NewDMSender(&fakePoster{postErr: errors.New("channel_not_found")}, map[string]string{"ana": "U0ANA0001"})
	if err := sender.Send(context.Background(), ana, "hi"); err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Fatalf("expected post error, got %v", err)
	}
}
