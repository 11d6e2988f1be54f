// Package channel provides a unified abstraction for multi-platform messaging
// channels. It defines the canonical inbound event, capability interfaces, and
// a registry for channel adapters such as Telegram and VK.
package channel

import (
	"strings"
	"time"
)

// Source identifies a messaging platform (e.g., "telegram", "vk").
type Source string

// String returns the source as a plain string.
func (s Source) String() string {
	return string(s)
}

const (
	SourceTelegram Source = "telegram"
	SourceVK       Source = "vk"
	SourceWhatsApp Source = "whatsapp"
	SourceEmail    Source = "email"
	SourceWebChat  Source = "web_chat"
)

// KnownSources lists every platform the hub understands, in stable order.
func KnownSources() []Source {
	return []Source{SourceTelegram, SourceVK, SourceWhatsApp, SourceEmail, SourceWebChat}
}

// ParseSource validates and normalizes a raw string into a known Source.
func ParseSource(raw string) (Source, bool) {
	normalized := Source(strings.TrimSpace(strings.ToLower(raw)))
	for _, s := range KnownSources() {
		if s == normalized {
			return s, true
		}
	}
	return "", false
}

// AttachmentType classifies the kind of binary attachment.
type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentAudio    AttachmentType = "audio"
	AttachmentDocument AttachmentType = "document"
	AttachmentFile     AttachmentType = "file"
)

// Attachment represents a binary file attached to a message.
type Attachment struct {
	Type     AttachmentType `json:"type"`
	URL      string         `json:"url"`
	FileName string         `json:"file_name,omitempty"`
	FileSize int64          `json:"file_size,omitempty"`
	MimeType string         `json:"mime_type,omitempty"`
}

// HasReference reports whether the attachment carries a usable URL.
func (a Attachment) HasReference() bool {
	return strings.TrimSpace(a.URL) != ""
}

// Inbound is the canonical event every adapter produces from a
// platform-specific payload. ExternalID identifies the remote party within
// the source platform (chat id, peer id, email address, session id).
type Inbound struct {
	Source            Source
	ExternalID        string
	ClientID          string
	Text              string
	ExternalMessageID string
	Timestamp         time.Time
	Attachments       []Attachment
	Profile           map[string]string
}

// IsEmpty reports whether the event carries neither text nor attachments.
func (in Inbound) IsEmpty() bool {
	return strings.TrimSpace(in.Text) == "" && len(in.Attachments) == 0
}

// ProfileValue returns the trimmed profile value for the given key, or empty
// string if absent.
func (in Inbound) ProfileValue(key string) string {
	if in.Profile == nil {
		return ""
	}
	return strings.TrimSpace(in.Profile[key])
}
