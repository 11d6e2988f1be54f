// Package telegram implements the Telegram channel adapter on top of the
// Bot API. Inbound updates arrive through the webhook endpoint and are
// normalized here; outbound replies go through the shared bot client.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/omnidesk/omnidesk/internal/channel"
)

const maxMessageLength = 4096

// Adapter sends and receives Telegram messages for a single bot token.
type Adapter struct {
	logger *slog.Logger
	token  string

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// New creates a Telegram adapter. The bot client is initialized lazily on
// first send so that a missing token only fails outbound dispatch, not
// startup.
func New(token string, log *slog.Logger) *Adapter {
	return &Adapter{
		logger: log.With(slog.String("adapter", "telegram")),
		token:  strings.TrimSpace(token),
	}
}

func (a *Adapter) Source() channel.Source {
	return channel.SourceTelegram
}

func (a *Adapter) client() (*tgbotapi.BotAPI, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bot != nil {
		return a.bot, nil
	}
	if a.token == "" {
		return nil, fmt.Errorf("telegram bot token is not configured")
	}
	bot, err := tgbotapi.NewBotAPI(a.token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	a.bot = bot
	a.logger.Info("telegram bot initialized", slog.String("username", bot.Self.UserName))
	return bot, nil
}

// ParseUpdate converts a raw webhook update into the canonical inbound
// event plus the update id used for deduplication. The final return is
// false for updates the hub ignores (edits, callbacks, service messages).
func (a *Adapter) ParseUpdate(body []byte) (channel.Inbound, string, bool) {
	var update tgbotapi.Update
	if err := json.Unmarshal(body, &update); err != nil {
		a.logger.Warn("failed to decode telegram update", slog.String("error", err.Error()))
		return channel.Inbound{}, "", false
	}
	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return channel.Inbound{}, "", false
	}

	in := channel.Inbound{
		Source:            channel.SourceTelegram,
		ExternalID:        strconv.FormatInt(msg.Chat.ID, 10),
		Text:              strings.TrimSpace(msg.Text),
		ExternalMessageID: strconv.Itoa(msg.MessageID),
		Timestamp:         time.Unix(int64(msg.Date), 0),
		Attachments:       collectAttachments(msg),
		Profile:           senderProfile(msg),
	}
	if in.Text == "" {
		in.Text = strings.TrimSpace(msg.Caption)
	}
	if in.IsEmpty() {
		return channel.Inbound{}, "", false
	}
	return in, strconv.Itoa(update.UpdateID), true
}

// Send delivers text and attachments to the chat identified by externalID.
// Each attachment goes out as its own message, the first one carrying the
// text as caption.
func (a *Adapter) Send(ctx context.Context, externalID, content string, attachments []channel.Attachment) error {
	bot, err := a.client()
	if err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(externalID), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram external id must be a chat id: %q", externalID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Best-effort typing indicator.
	if _, err := bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		a.logger.Debug("telegram chat action failed", slog.String("error", err.Error()))
	}

	text := truncateText(sanitizeText(content))
	if len(attachments) == 0 {
		if text == "" {
			return fmt.Errorf("telegram message is empty")
		}
		if _, err := bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	}

	caption := text
	for _, att := range attachments {
		if !att.HasReference() {
			continue
		}
		if err := sendAttachment(bot, chatID, att, caption); err != nil {
			return fmt.Errorf("telegram send attachment: %w", err)
		}
		caption = ""
	}
	return nil
}

func sendAttachment(bot *tgbotapi.BotAPI, chatID int64, att channel.Attachment, caption string) error {
	file := tgbotapi.RequestFileData(tgbotapi.FileURL(att.URL))
	switch att.Type {
	case channel.AttachmentImage:
		photo := tgbotapi.NewPhoto(chatID, file)
		photo.Caption = caption
		_, err := bot.Send(photo)
		return err
	case channel.AttachmentAudio:
		audio := tgbotapi.NewAudio(chatID, file)
		audio.Caption = caption
		_, err := bot.Send(audio)
		return err
	default:
		document := tgbotapi.NewDocument(chatID, file)
		document.Caption = caption
		_, err := bot.Send(document)
		return err
	}
}

func senderProfile(msg *tgbotapi.Message) map[string]string {
	if msg.From == nil {
		return nil
	}
	profile := map[string]string{
		"user_id": strconv.FormatInt(msg.From.ID, 10),
	}
	if msg.From.UserName != "" {
		profile["username"] = msg.From.UserName
	}
	name := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	if name != "" {
		profile["name"] = name
	}
	return profile
}

func collectAttachments(msg *tgbotapi.Message) []channel.Attachment {
	var items []channel.Attachment
	if photo := pickPhoto(msg.Photo); photo.FileID != "" {
		items = append(items, channel.Attachment{
			Type:     channel.AttachmentImage,
			URL:      photo.FileID,
			FileSize: int64(photo.FileSize),
			MimeType: "image/jpeg",
		})
	}
	if msg.Voice != nil {
		items = append(items, channel.Attachment{
			Type:     channel.AttachmentAudio,
			URL:      msg.Voice.FileID,
			FileSize: int64(msg.Voice.FileSize),
			MimeType: msg.Voice.MimeType,
		})
	}
	if msg.Audio != nil {
		items = append(items, channel.Attachment{
			Type:     channel.AttachmentAudio,
			URL:      msg.Audio.FileID,
			FileName: msg.Audio.FileName,
			FileSize: int64(msg.Audio.FileSize),
			MimeType: msg.Audio.MimeType,
		})
	}
	if msg.Document != nil {
		items = append(items, channel.Attachment{
			Type:     channel.AttachmentDocument,
			URL:      msg.Document.FileID,
			FileName: msg.Document.FileName,
			FileSize: int64(msg.Document.FileSize),
			MimeType: msg.Document.MimeType,
		})
	}
	return items
}

// pickPhoto returns the largest size variant of a photo.
func pickPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	if len(items) == 0 {
		return tgbotapi.PhotoSize{}
	}
	best := items[0]
	for _, item := range items[1:] {
		if item.FileSize > best.FileSize {
			best = item
		}
	}
	return best
}

func sanitizeText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

func truncateText(text string) string {
	if utf8.RuneCountInString(text) <= maxMessageLength {
		return text
	}
	const suffix = "..."
	runes := []rune(text)
	return string(runes[:maxMessageLength-len(suffix)]) + suffix
}
