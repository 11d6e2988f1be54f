// Package vk implements the VK community channel adapter over the Callback
// API (inbound) and the messages.* methods (outbound). VK ships no Go SDK,
// so the adapter talks to the REST API directly.
package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/omnidesk/omnidesk/internal/channel"
)

const (
	apiBaseURL = "https://api.vk.com/method"
	apiVersion = "5.199"
)

// Callback event types the adapter reacts to.
const (
	EventConfirmation = "confirmation"
	EventMessageNew   = "message_new"
)

// Adapter sends and receives VK community messages.
type Adapter struct {
	logger           *slog.Logger
	httpClient       *http.Client
	accessToken      string
	groupID          int64
	confirmationCode string
	secret           string
	randInt          func() int64
}

// New creates a VK adapter for a single community.
func New(accessToken string, groupID int64, confirmationCode, secret string, log *slog.Logger) *Adapter {
	return &Adapter{
		logger:           log.With(slog.String("adapter", "vk")),
		httpClient:       &http.Client{Timeout: 10 * time.Second},
		accessToken:      strings.TrimSpace(accessToken),
		groupID:          groupID,
		confirmationCode: strings.TrimSpace(confirmationCode),
		secret:           strings.TrimSpace(secret),
		randInt:          func() int64 { return rand.Int63() },
	}
}

func (a *Adapter) Source() channel.Source {
	return channel.SourceVK
}

// ConfirmationCode returns the string VK expects back when it probes the
// callback endpoint with a confirmation event.
func (a *Adapter) ConfirmationCode() string {
	return a.confirmationCode
}

type callbackEnvelope struct {
	Type    string          `json:"type"`
	EventID string          `json:"event_id"`
	GroupID int64           `json:"group_id"`
	Secret  string          `json:"secret"`
	Object  json.RawMessage `json:"object"`
}

type messageNewObject struct {
	Message callbackMessage `json:"message"`
}

type callbackMessage struct {
	ID          int64                `json:"id"`
	Date        int64                `json:"date"`
	PeerID      int64                `json:"peer_id"`
	FromID      int64                `json:"from_id"`
	Text        string               `json:"text"`
	Attachments []callbackAttachment `json:"attachments"`
}

type callbackAttachment struct {
	Type  string `json:"type"`
	Photo *struct {
		Sizes []struct {
			URL    string `json:"url"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"sizes"`
	} `json:"photo"`
	Doc *struct {
		URL   string `json:"url"`
		Title string `json:"title"`
		Size  int64  `json:"size"`
		Ext   string `json:"ext"`
	} `json:"doc"`
	AudioMessage *struct {
		LinkMP3 string `json:"link_mp3"`
	} `json:"audio_message"`
}

// ParseCallback decodes a Callback API envelope. It returns the event type,
// the normalized inbound event (for message_new only) and the event id used
// for deduplication. An empty event type means the payload was unreadable.
func (a *Adapter) ParseCallback(body []byte) (eventType string, in channel.Inbound, eventID string, err error) {
	var env callbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", channel.Inbound{}, "", fmt.Errorf("decode vk callback: %w", err)
	}
	if a.secret != "" && env.Secret != a.secret {
		return "", channel.Inbound{}, "", fmt.Errorf("vk callback secret mismatch")
	}
	if env.Type != EventMessageNew {
		return env.Type, channel.Inbound{}, env.EventID, nil
	}

	var obj messageNewObject
	if err := json.Unmarshal(env.Object, &obj); err != nil {
		return env.Type, channel.Inbound{}, env.EventID, fmt.Errorf("decode vk message_new: %w", err)
	}
	msg := obj.Message
	in = channel.Inbound{
		Source:            channel.SourceVK,
		ExternalID:        strconv.FormatInt(msg.PeerID, 10),
		Text:              strings.TrimSpace(msg.Text),
		ExternalMessageID: strconv.FormatInt(msg.ID, 10),
		Timestamp:         time.Unix(msg.Date, 0),
		Attachments:       convertAttachments(msg.Attachments),
		Profile: map[string]string{
			"user_id": strconv.FormatInt(msg.FromID, 10),
		},
	}
	return env.Type, in, env.EventID, nil
}

func convertAttachments(items []callbackAttachment) []channel.Attachment {
	var out []channel.Attachment
	for _, item := range items {
		switch {
		case item.Photo != nil:
			best := ""
			bestArea := 0
			for _, size := range item.Photo.Sizes {
				if area := size.Width * size.Height; area > bestArea {
					best, bestArea = size.URL, area
				}
			}
			if best != "" {
				out = append(out, channel.Attachment{
					Type: channel.AttachmentImage,
					URL:  best,
				})
			}
		case item.AudioMessage != nil:
			if item.AudioMessage.LinkMP3 != "" {
				out = append(out, channel.Attachment{
					Type:     channel.AttachmentAudio,
					URL:      item.AudioMessage.LinkMP3,
					MimeType: "audio/mpeg",
				})
			}
		case item.Doc != nil:
			if item.Doc.URL != "" {
				out = append(out, channel.Attachment{
					Type:     channel.AttachmentDocument,
					URL:      item.Doc.URL,
					FileName: item.Doc.Title,
					FileSize: item.Doc.Size,
				})
			}
		}
	}
	return out
}

// Send delivers a message via messages.send. Attachments VK cannot take by
// URL are appended to the text as links.
func (a *Adapter) Send(ctx context.Context, externalID, content string, attachments []channel.Attachment) error {
	peerID, err := strconv.ParseInt(strings.TrimSpace(externalID), 10, 64)
	if err != nil {
		return fmt.Errorf("vk external id must be a peer id: %q", externalID)
	}

	text := strings.TrimSpace(content)
	var links []string
	for _, att := range attachments {
		if att.HasReference() {
			links = append(links, att.URL)
		}
	}
	if len(links) > 0 {
		if text != "" {
			text += "\n"
		}
		text += strings.Join(links, "\n")
	}
	if text == "" {
		return fmt.Errorf("vk message is empty")
	}

	params := url.Values{
		"peer_id":   {strconv.FormatInt(peerID, 10)},
		"message":   {text},
		"random_id": {strconv.FormatInt(a.randInt(), 10)},
	}
	return a.call(ctx, "messages.send", params)
}

// MarkRead propagates a read receipt via messages.markAsRead.
func (a *Adapter) MarkRead(ctx context.Context, externalID string) error {
	peerID, err := strconv.ParseInt(strings.TrimSpace(externalID), 10, 64)
	if err != nil {
		return fmt.Errorf("vk external id must be a peer id: %q", externalID)
	}
	params := url.Values{
		"peer_id":                   {strconv.FormatInt(peerID, 10)},
		"mark_conversation_as_read": {"1"},
	}
	return a.call(ctx, "messages.markAsRead", params)
}

type apiError struct {
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

type apiResponse struct {
	Error *apiError `json:"error"`
}

func (a *Adapter) call(ctx context.Context, method string, params url.Values) error {
	if a.accessToken == "" {
		return fmt.Errorf("vk access token is not configured")
	}
	params.Set("access_token", a.accessToken)
	params.Set("v", apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		apiBaseURL+"/"+method, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("build vk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vk %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("vk %s: read response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vk %s: unexpected status %d", method, resp.StatusCode)
	}
	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fmt.Errorf("vk %s: decode response: %w", method, err)
	}
	if parsed.Error != nil {
		return fmt.Errorf("vk %s: api error %d: %s", method, parsed.Error.ErrorCode, parsed.Error.ErrorMsg)
	}
	return nil
}
