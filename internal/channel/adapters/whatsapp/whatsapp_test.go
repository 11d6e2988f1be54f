package whatsapp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/omnidesk/omnidesk/internal/channel"
)

func testAdapter(baseURL string) *Adapter {
	return New(baseURL, "bridge-token", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestParseWebhook(t *testing.T) {
	body := []byte(`{
		"message_id": "wamid.123",
		"from": " 79991234567 ",
		"text": "есть в наличии?",
		"timestamp": 1714000000,
		"sender": {"name": "Olga"},
		"media": [
			{"type": "image", "url": "https://bridge/media/1.jpg", "mime_type": "image/jpeg"},
			{"type": "voice", "url": "https://bridge/media/2.ogg", "mime_type": "audio/ogg"},
			{"type": "document", "url": "", "file_name": "skipped.pdf"}
		]
	}`)

	in, eventID, err := testAdapter("").ParseWebhook(body)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if eventID != "wamid.123" {
		t.Errorf("eventID = %s", eventID)
	}
	if in.Source != channel.SourceWhatsApp {
		t.Errorf("source = %s", in.Source)
	}
	if in.ExternalID != "79991234567" {
		t.Errorf("external id = %q", in.ExternalID)
	}
	if in.ProfileValue("name") != "Olga" {
		t.Errorf("profile name = %q", in.ProfileValue("name"))
	}
	if len(in.Attachments) != 2 {
		t.Fatalf("attachments = %d, want 2 (empty url dropped)", len(in.Attachments))
	}
	if in.Attachments[0].Type != channel.AttachmentImage {
		t.Errorf("first attachment type = %s", in.Attachments[0].Type)
	}
	if in.Attachments[1].Type != channel.AttachmentAudio {
		t.Errorf("voice attachment type = %s, want audio", in.Attachments[1].Type)
	}
}

func TestParseWebhookMissingSender(t *testing.T) {
	if _, _, err := testAdapter("").ParseWebhook([]byte(`{"message_id": "x", "text": "hi"}`)); err == nil {
		t.Fatal("payload without sender not rejected")
	}
}

func TestSend(t *testing.T) {
	var got sendRequest
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/send" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := testAdapter(srv.URL).Send(context.Background(), "79991234567", "shipping today", []channel.Attachment{
		{Type: channel.AttachmentImage, URL: "https://cdn/label.png"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAuth != "Bearer bridge-token" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if got.To != "79991234567" || got.Text != "shipping today" {
		t.Errorf("request = %+v", got)
	}
	if len(got.Media) != 1 || got.Media[0].URL != "https://cdn/label.png" {
		t.Errorf("media = %+v", got.Media)
	}
}

func TestSendBridgeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session expired", http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := testAdapter(srv.URL).Send(context.Background(), "7999", "hi", nil); err == nil {
		t.Fatal("bridge error not surfaced")
	}
}

func TestSendEmptyMessage(t *testing.T) {
	if err := testAdapter("http://unused").Send(context.Background(), "7999", "  ", nil); err == nil {
		t.Fatal("empty message not rejected")
	}
}

func TestMarkRead(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := testAdapter(srv.URL).MarkRead(context.Background(), "79991234567"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if gotPath != "/read" {
		t.Errorf("path = %s", gotPath)
	}
}
