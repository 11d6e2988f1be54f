// Package whatsapp implements the WhatsApp channel adapter against a bridge
// service (a separate process that owns the WhatsApp session and exposes a
// small HTTP API plus a webhook for inbound messages).
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/omnidesk/omnidesk/internal/channel"
)

// Adapter proxies sends and read receipts to the bridge service.
type Adapter struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	token      string
}

// New creates a WhatsApp bridge adapter.
func New(baseURL, token string, log *slog.Logger) *Adapter {
	return &Adapter{
		logger:     log.With(slog.String("adapter", "whatsapp")),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:      strings.TrimSpace(token),
	}
}

func (a *Adapter) Source() channel.Source {
	return channel.SourceWhatsApp
}

type webhookPayload struct {
	MessageID string `json:"message_id"`
	From      string `json:"from"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	Sender    struct {
		Name string `json:"name"`
	} `json:"sender"`
	Media []struct {
		Type     string `json:"type"`
		URL      string `json:"url"`
		FileName string `json:"file_name"`
		FileSize int64  `json:"file_size"`
		MimeType string `json:"mime_type"`
	} `json:"media"`
}

// ParseWebhook converts a bridge webhook payload into the canonical inbound
// event plus the bridge message id used for deduplication.
func (a *Adapter) ParseWebhook(body []byte) (channel.Inbound, string, error) {
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return channel.Inbound{}, "", fmt.Errorf("decode whatsapp webhook: %w", err)
	}
	if strings.TrimSpace(payload.From) == "" {
		return channel.Inbound{}, "", fmt.Errorf("whatsapp webhook is missing sender")
	}

	in := channel.Inbound{
		Source:            channel.SourceWhatsApp,
		ExternalID:        strings.TrimSpace(payload.From),
		Text:              strings.TrimSpace(payload.Text),
		ExternalMessageID: payload.MessageID,
		Timestamp:         time.Unix(payload.Timestamp, 0),
	}
	if payload.Sender.Name != "" {
		in.Profile = map[string]string{"name": payload.Sender.Name}
	}
	for _, media := range payload.Media {
		if media.URL == "" {
			continue
		}
		in.Attachments = append(in.Attachments, channel.Attachment{
			Type:     mediaType(media.Type),
			URL:      media.URL,
			FileName: media.FileName,
			FileSize: media.FileSize,
			MimeType: media.MimeType,
		})
	}
	return in, payload.MessageID, nil
}

func mediaType(raw string) channel.AttachmentType {
	switch strings.ToLower(raw) {
	case "image":
		return channel.AttachmentImage
	case "audio", "voice", "ptt":
		return channel.AttachmentAudio
	case "document":
		return channel.AttachmentDocument
	default:
		return channel.AttachmentFile
	}
}

type sendRequest struct {
	To    string      `json:"to"`
	Text  string      `json:"text,omitempty"`
	Media []sendMedia `json:"media,omitempty"`
}

type sendMedia struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// Send posts the message to the bridge's send endpoint.
func (a *Adapter) Send(ctx context.Context, externalID, content string, attachments []channel.Attachment) error {
	req := sendRequest{
		To:   strings.TrimSpace(externalID),
		Text: strings.TrimSpace(content),
	}
	for _, att := range attachments {
		if !att.HasReference() {
			continue
		}
		req.Media = append(req.Media, sendMedia{
			Type:     string(att.Type),
			URL:      att.URL,
			FileName: att.FileName,
			MimeType: att.MimeType,
		})
	}
	if req.Text == "" && len(req.Media) == 0 {
		return fmt.Errorf("whatsapp message is empty")
	}
	return a.post(ctx, "/send", req)
}

// MarkRead asks the bridge to mark the chat as read.
func (a *Adapter) MarkRead(ctx context.Context, externalID string) error {
	return a.post(ctx, "/read", map[string]string{"to": strings.TrimSpace(externalID)})
}

func (a *Adapter) post(ctx context.Context, path string, payload any) error {
	if a.baseURL == "" {
		return fmt.Errorf("whatsapp bridge url is not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode whatsapp request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp bridge %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("whatsapp bridge %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
