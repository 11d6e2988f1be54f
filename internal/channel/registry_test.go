package channel

import (
	"context"
	"testing"
)

type stubAdapter struct {
	source Source
}

func (s *stubAdapter) Source() Source { return s.source }

type stubSender struct {
	stubAdapter
}

func (s *stubSender) Send(ctx context.Context, externalID, content string, attachments []Attachment) error {
	return nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubAdapter{source: SourceTelegram}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, ok := r.Get(SourceTelegram); !ok {
		t.Error("registered adapter not found")
	}
	if _, ok := r.Get(SourceVK); ok {
		t.Error("unexpected adapter for unregistered source")
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&stubAdapter{source: SourceVK}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&stubAdapter{source: SourceVK}); err == nil {
		t.Error("duplicate registration did not fail")
	}
}

func TestRegistryCapabilityLookups(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&stubSender{stubAdapter{source: SourceTelegram}})
	r.MustRegister(&stubAdapter{source: SourceEmail})

	if _, ok := r.GetSender(SourceTelegram); !ok {
		t.Error("sender capability not detected")
	}
	if _, ok := r.GetSender(SourceEmail); ok {
		t.Error("adapter without Send reported as sender")
	}
	if _, ok := r.GetReadMarker(SourceTelegram); ok {
		t.Error("adapter without MarkRead reported as read marker")
	}
}

func TestRegistrySourcesSorted(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&stubAdapter{source: SourceWebChat})
	r.MustRegister(&stubAdapter{source: SourceEmail})
	r.MustRegister(&stubAdapter{source: SourceTelegram})

	got := r.Sources()
	want := []Source{SourceEmail, SourceTelegram, SourceWebChat}
	if len(got) != len(want) {
		t.Fatalf("Sources() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Sources()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestParseSource(t *testing.T) {
	tests := []struct {
		raw    string
		want   Source
		wantOK bool
	}{
		{"telegram", SourceTelegram, true},
		{" VK ", SourceVK, true},
		{"web_chat", SourceWebChat, true},
		{"discord", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseSource(tt.raw)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseSource(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestInboundIsEmpty(t *testing.T) {
	if !(Inbound{Text: "  "}).IsEmpty() {
		t.Error("whitespace-only text should be empty")
	}
	if (Inbound{Text: "hi"}).IsEmpty() {
		t.Error("text event should not be empty")
	}
	if (Inbound{Attachments: []Attachment{{Type: AttachmentImage, URL: "https://x/p.jpg"}}}).IsEmpty() {
		t.Error("attachment-only event should not be empty")
	}
}
