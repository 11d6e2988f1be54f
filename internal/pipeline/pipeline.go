// Package pipeline runs every message through the same path: validate,
// persist atomically, then dispatch outbound delivery and realtime events.
// Persistence is the hard step; adapter delivery is soft and only moves the
// message status.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/conversation"
	"github.com/omnidesk/omnidesk/internal/realtime"
)

// ErrInvalidInput is returned when a message carries neither content nor
// attachments, or an unknown direction.
var ErrInvalidInput = errors.New("invalid message input")

// ErrNotResendable is returned when a resend targets a message that is not
// in the failed state.
var ErrNotResendable = errors.New("message is not in a resendable state")

const dispatchTimeout = 10 * time.Second

// Store is the persistence surface the pipeline needs.
type Store interface {
	FindOrCreate(ctx context.Context, source channel.Source, externalID, clientID string) (conversation.Conversation, error)
	Get(ctx context.Context, id string) (conversation.Conversation, error)
	MarkRead(ctx context.Context, id string) error
	Append(ctx context.Context, conversationID string, msg conversation.Message) (conversation.Message, error)
	GetMessage(ctx context.Context, id string) (conversation.Message, error)
	UpdateMessageStatus(ctx context.Context, id string, to conversation.MessageStatus) error
}

// Publisher emits realtime events after commit.
type Publisher interface {
	Publish(name string, payload any)
}

// Enqueuer schedules failed outbound messages for redelivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, messageID string, attempt int, cause error) error
}

// Pipeline coordinates the conversation store, the channel registry, the
// realtime hub and the retry queue.
type Pipeline struct {
	logger   *slog.Logger
	store    Store
	registry *channel.Registry
	events   Publisher
	retries  Enqueuer
}

// New creates a message pipeline.
func New(store Store, registry *channel.Registry, events Publisher, retries Enqueuer, log *slog.Logger) *Pipeline {
	return &Pipeline{
		logger:   log.With(slog.String("service", "pipeline")),
		store:    store,
		registry: registry,
		events:   events,
		retries:  retries,
	}
}

// Input describes a message to add to a conversation.
type Input struct {
	Direction   conversation.Direction
	Content     string
	ContentType conversation.ContentType
	Attachments []conversation.Attachment
	SourceData  map[string]any
}

func (in Input) validate() error {
	if in.Direction != conversation.DirectionIncoming && in.Direction != conversation.DirectionOutgoing {
		return fmt.Errorf("%w: direction %q", ErrInvalidInput, in.Direction)
	}
	if in.Content == "" && len(in.Attachments) == 0 {
		return fmt.Errorf("%w: content or attachments required", ErrInvalidInput)
	}
	return nil
}

// HandleInbound resolves the conversation for a normalized platform event
// and appends the message.
func (p *Pipeline) HandleInbound(ctx context.Context, in channel.Inbound) (conversation.Message, error) {
	if in.IsEmpty() {
		return conversation.Message{}, fmt.Errorf("%w: empty inbound event", ErrInvalidInput)
	}
	conv, err := p.store.FindOrCreate(ctx, in.Source, in.ExternalID, in.ClientID)
	if err != nil {
		return conversation.Message{}, err
	}

	sourceData := map[string]any{}
	if in.ExternalMessageID != "" {
		sourceData["external_message_id"] = in.ExternalMessageID
	}
	for key, value := range in.Profile {
		sourceData[key] = value
	}

	attachments := make([]conversation.Attachment, 0, len(in.Attachments))
	for _, att := range in.Attachments {
		attachments = append(attachments, conversation.Attachment{
			Type:     string(att.Type),
			URL:      att.URL,
			FileName: att.FileName,
			FileSize: att.FileSize,
			MimeType: att.MimeType,
		})
	}

	return p.AddMessage(ctx, conv, Input{
		Direction:   conversation.DirectionIncoming,
		Content:     in.Text,
		Attachments: attachments,
		SourceData:  sourceData,
	})
}

// AddMessage validates, persists and dispatches one message. Outgoing
// messages are handed to the channel adapter after commit; a delivery
// failure marks the message failed and schedules a retry but never unwinds
// the persisted rows.
func (p *Pipeline) AddMessage(ctx context.Context, conv conversation.Conversation, in Input) (conversation.Message, error) {
	if err := in.validate(); err != nil {
		return conversation.Message{}, err
	}

	msg := conversation.Message{
		Direction:   in.Direction,
		Content:     in.Content,
		ContentType: in.ContentType,
		Status:      initialStatus(in.Direction),
		SourceData:  in.SourceData,
		Attachments: in.Attachments,
	}
	if msg.ContentType == "" {
		msg.ContentType = inferContentType(in)
	}

	saved, err := p.store.Append(ctx, conv.ID, msg)
	if err != nil {
		return conversation.Message{}, err
	}

	if in.Direction == conversation.DirectionOutgoing {
		saved.Status = p.dispatch(ctx, conv, saved, 1)
	}

	p.emitMessage(conv, saved)
	return saved, nil
}

// Resend restarts delivery of a failed outgoing message.
func (p *Pipeline) Resend(ctx context.Context, messageID string) (conversation.Message, error) {
	msg, err := p.store.GetMessage(ctx, messageID)
	if err != nil {
		return conversation.Message{}, err
	}
	if msg.Direction != conversation.DirectionOutgoing || msg.Status != conversation.MessageFailed {
		return conversation.Message{}, ErrNotResendable
	}
	conv, err := p.store.Get(ctx, msg.ConversationID)
	if err != nil {
		return conversation.Message{}, err
	}

	if err := p.store.UpdateMessageStatus(ctx, msg.ID, conversation.MessageSending); err != nil {
		return conversation.Message{}, err
	}
	msg.Status = p.dispatch(ctx, conv, msg, 1)
	p.emitMessage(conv, msg)
	return msg, nil
}

// Redispatch re-runs delivery for the retry sweeper. Unlike Resend it
// reports the delivery error so the caller can reschedule, and it does not
// enqueue by itself.
func (p *Pipeline) Redispatch(ctx context.Context, messageID string) error {
	msg, err := p.store.GetMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.Direction != conversation.DirectionOutgoing || msg.Status != conversation.MessageFailed {
		// Already delivered through another path; nothing to do.
		return nil
	}
	conv, err := p.store.Get(ctx, msg.ConversationID)
	if err != nil {
		return err
	}
	if err := p.store.UpdateMessageStatus(ctx, msg.ID, conversation.MessageSending); err != nil {
		return err
	}

	if err := p.send(ctx, conv, msg); err != nil {
		p.updateStatus(ctx, msg.ID, conversation.MessageFailed)
		return err
	}
	status := successStatus(conv.Source)
	p.updateStatus(ctx, msg.ID, status)
	msg.Status = status
	p.emitMessage(conv, msg)
	return nil
}

// MarkConversationRead zeroes the unread counter, flips incoming messages to
// read, and forwards a read receipt to the platform when the channel
// supports one. The receipt is best-effort.
func (p *Pipeline) MarkConversationRead(ctx context.Context, conversationID string) error {
	conv, err := p.store.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if err := p.store.MarkRead(ctx, conversationID); err != nil {
		return err
	}

	if marker, ok := p.registry.GetReadMarker(conv.Source); ok && conv.ExternalID != "" {
		mctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
		defer cancel()
		if err := marker.MarkRead(mctx, conv.ExternalID); err != nil {
			p.logger.Warn("platform read receipt failed",
				slog.String("conversation_id", conv.ID),
				slog.String("source", conv.Source.String()),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// dispatch runs adapter delivery and maps the outcome onto the message
// status. Failures schedule a retry.
func (p *Pipeline) dispatch(ctx context.Context, conv conversation.Conversation, msg conversation.Message, attempt int) conversation.MessageStatus {
	if err := p.send(ctx, conv, msg); err != nil {
		p.logger.Warn("outbound dispatch failed",
			slog.String("message_id", msg.ID),
			slog.String("source", conv.Source.String()),
			slog.String("error", err.Error()))
		p.updateStatus(ctx, msg.ID, conversation.MessageFailed)
		if qerr := p.retries.Enqueue(ctx, msg.ID, attempt, err); qerr != nil {
			p.logger.Error("retry enqueue failed",
				slog.String("message_id", msg.ID), slog.Any("error", qerr))
		}
		return conversation.MessageFailed
	}
	status := successStatus(conv.Source)
	p.updateStatus(ctx, msg.ID, status)
	return status
}

// successStatus maps a successful dispatch onto the message status. Web chat
// has no platform between us and the visitor: the hub broadcast is the
// delivery, so the message is delivered as soon as it is persisted and
// published.
func successStatus(source channel.Source) conversation.MessageStatus {
	if source == channel.SourceWebChat {
		return conversation.MessageDelivered
	}
	return conversation.MessageSent
}

func (p *Pipeline) send(ctx context.Context, conv conversation.Conversation, msg conversation.Message) error {
	sender, ok := p.registry.GetSender(conv.Source)
	if !ok {
		return fmt.Errorf("no sender registered for source %s", conv.Source)
	}
	attachments := make([]channel.Attachment, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		attachments = append(attachments, channel.Attachment{
			Type:     channel.AttachmentType(att.Type),
			URL:      att.URL,
			FileName: att.FileName,
			FileSize: att.FileSize,
			MimeType: att.MimeType,
		})
	}
	sctx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	return sender.Send(sctx, conv.ExternalID, msg.Content, attachments)
}

func (p *Pipeline) updateStatus(ctx context.Context, messageID string, to conversation.MessageStatus) {
	if err := p.store.UpdateMessageStatus(ctx, messageID, to); err != nil {
		p.logger.Error("message status update failed",
			slog.String("message_id", messageID),
			slog.String("to", string(to)), slog.Any("error", err))
	}
}

func (p *Pipeline) emitMessage(conv conversation.Conversation, msg conversation.Message) {
	p.events.Publish(realtime.ConversationChannel(conv.ID), map[string]any{
		"type":            "message",
		"id":              msg.ID,
		"conversation_id": msg.ConversationID,
		"direction":       msg.Direction,
		"content":         msg.Content,
		"content_type":    msg.ContentType,
		"status":          msg.Status,
		"attachments":     msg.Attachments,
		"created_at":      msg.CreatedAt,
	})
	if msg.Direction == conversation.DirectionIncoming {
		p.events.Publish(realtime.AdminChannel, map[string]any{
			"type":            "new_message",
			"conversation_id": conv.ID,
			"source":          conv.Source,
			"last_message_at": msg.CreatedAt,
		})
	}
}

func initialStatus(direction conversation.Direction) conversation.MessageStatus {
	if direction == conversation.DirectionIncoming {
		return conversation.MessageDelivered
	}
	return conversation.MessageSending
}

func inferContentType(in Input) conversation.ContentType {
	if len(in.Attachments) == 0 {
		return conversation.ContentText
	}
	switch channel.AttachmentType(in.Attachments[0].Type) {
	case channel.AttachmentImage:
		return conversation.ContentImage
	case channel.AttachmentAudio:
		return conversation.ContentAudio
	default:
		return conversation.ContentFile
	}
}
