package email

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/config"
)

type fakeProvider struct {
	sent    []OutboundEmail
	sendErr error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Send(ctx context.Context, msg OutboundEmail) (string, error) {
	if p.sendErr != nil {
		return "", p.sendErr
	}
	p.sent = append(p.sent, msg)
	return "<fake-id@omnidesk>", nil
}

func testAdapter(provider Provider, prefix string) *Adapter {
	cfg := config.EmailConfig{SubjectPrefix: prefix}
	return New(provider, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSend(t *testing.T) {
	provider := &fakeProvider{}
	adapter := testAdapter(provider, "[Shop]")

	err := adapter.Send(context.Background(), "client@example.com", "Your refund is on the way", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(provider.sent) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(provider.sent))
	}
	msg := provider.sent[0]
	if msg.To[0] != "client@example.com" {
		t.Errorf("to = %v", msg.To)
	}
	if msg.Subject != "[Shop] New message" {
		t.Errorf("subject = %q", msg.Subject)
	}
}

func TestSendAppendsAttachmentLinks(t *testing.T) {
	provider := &fakeProvider{}
	adapter := testAdapter(provider, "")

	err := adapter.Send(context.Background(), "client@example.com", "invoice attached", []channel.Attachment{
		{Type: channel.AttachmentDocument, URL: "https://cdn/invoice.pdf"},
		{Type: channel.AttachmentImage, URL: ""},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	body := provider.sent[0].Body
	if !strings.Contains(body, "https://cdn/invoice.pdf") {
		t.Errorf("body missing attachment link: %q", body)
	}
	if strings.Count(body, "https://") != 1 {
		t.Errorf("attachment without url should be skipped: %q", body)
	}
}

func TestSendRejectsInvalidAddress(t *testing.T) {
	adapter := testAdapter(&fakeProvider{}, "")
	if err := adapter.Send(context.Background(), "not-an-address", "hi", nil); err == nil {
		t.Fatal("invalid address not rejected")
	}
}

func TestSendRejectsEmptyBody(t *testing.T) {
	adapter := testAdapter(&fakeProvider{}, "")
	if err := adapter.Send(context.Background(), "client@example.com", "  ", nil); err == nil {
		t.Fatal("empty body not rejected")
	}
}
