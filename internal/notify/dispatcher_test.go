package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/omnidesk/omnidesk/internal/channel"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeNotifier struct {
	name    string
	sendErr error
	calls   []string
}

func (n *fakeNotifier) Name() string { return n.name }

func (n *fakeNotifier) Send(ctx context.Context, recipientID, message string, data map[string]any) error {
	if n.sendErr != nil {
		return n.sendErr
	}
	n.calls = append(n.calls, recipientID+":"+message)
	return nil
}

func TestSendViaChannelUnknown(t *testing.T) {
	d := NewDispatcher(discardLogger())
	if d.SendViaChannel(context.Background(), "sms", "u1", "hi", nil) {
		t.Error("unknown channel reported success")
	}
}

func TestSendViaChannelsIndependentFailures(t *testing.T) {
	d := NewDispatcher(discardLogger())
	ok := &fakeNotifier{name: "telegram"}
	broken := &fakeNotifier{name: "email", sendErr: errors.New("smtp down")}
	d.Register(ok)
	d.Register(broken)

	results := d.SendViaChannels(context.Background(), []string{"telegram", "email", "sms"}, "u1", "order shipped", nil)
	if !results["telegram"] {
		t.Error("telegram should succeed")
	}
	if results["email"] {
		t.Error("email should fail")
	}
	if results["sms"] {
		t.Error("unregistered sms should fail")
	}
	if len(ok.calls) != 1 {
		t.Errorf("telegram calls = %d, want 1", len(ok.calls))
	}
}

func TestRegisterOverwrites(t *testing.T) {
	d := NewDispatcher(discardLogger())
	first := &fakeNotifier{name: "telegram", sendErr: errors.New("stale")}
	second := &fakeNotifier{name: "telegram"}
	d.Register(first)
	d.Register(second)

	if !d.SendViaChannel(context.Background(), "telegram", "u1", "hi", nil) {
		t.Error("replacement notifier not used")
	}
	if len(d.Channels()) != 1 {
		t.Errorf("channels = %v, want one entry", d.Channels())
	}
}

type captureSender struct {
	source   channel.Source
	messages []string
}

func (s *captureSender) Source() channel.Source { return s.source }

func (s *captureSender) Send(ctx context.Context, externalID, content string, attachments []channel.Attachment) error {
	s.messages = append(s.messages, content)
	return nil
}

func TestEmailNotifierAppendsFooter(t *testing.T) {
	registry := channel.NewRegistry()
	sender := &captureSender{source: channel.SourceEmail}
	registry.MustRegister(sender)

	n := NewEmailNotifier(registry, "Unsubscribe: https://shop.example/unsubscribe")
	if err := n.Send(context.Background(), "client@example.com", "Sale starts tomorrow", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sender.messages) != 1 {
		t.Fatalf("sends = %d, want 1", len(sender.messages))
	}
	got := sender.messages[0]
	if !strings.HasSuffix(got, "Unsubscribe: https://shop.example/unsubscribe") {
		t.Errorf("footer missing: %q", got)
	}
	if !strings.Contains(got, "Sale starts tomorrow") {
		t.Errorf("original message missing: %q", got)
	}
}

func TestChannelNotifierRequiresSender(t *testing.T) {
	registry := channel.NewRegistry()
	n := NewChannelNotifier(channel.SourceVK, registry)
	if err := n.Send(context.Background(), "2001", "hi", nil); err == nil {
		t.Fatal("missing sender not reported")
	}
	if n.Name() != "vk" {
		t.Errorf("name = %q", n.Name())
	}
}
