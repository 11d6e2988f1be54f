package telegram

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/omnidesk/omnidesk/internal/channel"
)

func testAdapter() *Adapter {
	return New("", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestParseUpdateTextMessage(t *testing.T) {
	body := []byte(`{
		"update_id": 777001,
		"message": {
			"message_id": 42,
			"date": 1714000000,
			"chat": {"id": 123456789, "type": "private"},
			"from": {"id": 123456789, "first_name": "Anna", "last_name": "K", "username": "annak"},
			"text": "  where is my order?  "
		}
	}`)

	in, eventID, ok := testAdapter().ParseUpdate(body)
	if !ok {
		t.Fatal("ParseUpdate returned ok=false")
	}
	if eventID != "777001" {
		t.Errorf("eventID = %s, want 777001", eventID)
	}
	if in.Source != channel.SourceTelegram {
		t.Errorf("source = %s", in.Source)
	}
	if in.ExternalID != "123456789" {
		t.Errorf("external id = %s", in.ExternalID)
	}
	if in.Text != "where is my order?" {
		t.Errorf("text = %q", in.Text)
	}
	if in.ExternalMessageID != "42" {
		t.Errorf("external message id = %s", in.ExternalMessageID)
	}
	if in.ProfileValue("username") != "annak" {
		t.Errorf("profile username = %q", in.ProfileValue("username"))
	}
	if in.ProfileValue("name") != "Anna K" {
		t.Errorf("profile name = %q", in.ProfileValue("name"))
	}
}

func TestParseUpdatePhotoWithCaption(t *testing.T) {
	body := []byte(`{
		"update_id": 777002,
		"message": {
			"message_id": 43,
			"date": 1714000001,
			"chat": {"id": 123456789, "type": "private"},
			"caption": "broken item",
			"photo": [
				{"file_id": "small", "file_size": 100, "width": 90, "height": 90},
				{"file_id": "large", "file_size": 9000, "width": 800, "height": 800}
			]
		}
	}`)

	in, _, ok := testAdapter().ParseUpdate(body)
	if !ok {
		t.Fatal("ParseUpdate returned ok=false")
	}
	if in.Text != "broken item" {
		t.Errorf("text = %q, want caption", in.Text)
	}
	if len(in.Attachments) != 1 {
		t.Fatalf("attachments = %d, want 1", len(in.Attachments))
	}
	att := in.Attachments[0]
	if att.Type != channel.AttachmentImage {
		t.Errorf("attachment type = %s", att.Type)
	}
	if att.URL != "large" {
		t.Errorf("attachment file = %s, want largest size", att.URL)
	}
}

func TestParseUpdateIgnored(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{broken`},
		{"no message", `{"update_id": 1, "edited_message": {"message_id": 2}}`},
		{"empty message", `{"update_id": 1, "message": {"message_id": 2, "chat": {"id": 5, "type": "private"}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, ok := testAdapter().ParseUpdate([]byte(tt.body)); ok {
				t.Error("ParseUpdate returned ok=true for ignorable update")
			}
		})
	}
}

func TestTruncateText(t *testing.T) {
	long := strings.Repeat("я", maxMessageLength+100)
	got := truncateText(long)
	if n := len([]rune(got)); n != maxMessageLength {
		t.Errorf("truncated length = %d, want %d", n, maxMessageLength)
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("truncated text missing ellipsis")
	}
	if short := truncateText("hello"); short != "hello" {
		t.Errorf("short text modified: %q", short)
	}
}

func TestSanitizeText(t *testing.T) {
	if got := sanitizeText("ok"); got != "ok" {
		t.Errorf("valid text modified: %q", got)
	}
	if got := sanitizeText("bad\xffbyte"); got != "badbyte" {
		t.Errorf("invalid utf-8 not stripped: %q", got)
	}
}
