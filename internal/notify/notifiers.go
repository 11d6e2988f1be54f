package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/conversation"
	"github.com/omnidesk/omnidesk/internal/pipeline"
)

// ChannelNotifier wraps a channel adapter's Sender so notifications reuse
// the same delivery code as conversation replies.
type ChannelNotifier struct {
	source   channel.Source
	registry *channel.Registry
}

// NewChannelNotifier creates a notifier for a messaging channel.
func NewChannelNotifier(source channel.Source, registry *channel.Registry) *ChannelNotifier {
	return &ChannelNotifier{source: source, registry: registry}
}

func (n *ChannelNotifier) Name() string {
	return n.source.String()
}

func (n *ChannelNotifier) Send(ctx context.Context, recipientID, message string, data map[string]any) error {
	sender, ok := n.registry.GetSender(n.source)
	if !ok {
		return fmt.Errorf("source %s cannot send", n.source)
	}
	return sender.Send(ctx, recipientID, message, nil)
}

// EmailNotifier delivers notifications as email, with the mandatory
// unsubscribe footer appended to every message.
type EmailNotifier struct {
	registry *channel.Registry
	footer   string
}

// NewEmailNotifier creates the email notification channel.
func NewEmailNotifier(registry *channel.Registry, footer string) *EmailNotifier {
	return &EmailNotifier{registry: registry, footer: strings.TrimSpace(footer)}
}

func (n *EmailNotifier) Name() string {
	return channel.SourceEmail.String()
}

func (n *EmailNotifier) Send(ctx context.Context, recipientID, message string, data map[string]any) error {
	sender, ok := n.registry.GetSender(channel.SourceEmail)
	if !ok {
		return fmt.Errorf("email channel cannot send")
	}
	if n.footer != "" {
		message = message + "\n\n--\n" + n.footer
	}
	return sender.Send(ctx, recipientID, message, nil)
}

// WebChatNotifier stores the notification as an outgoing message in the
// recipient's web chat conversation; the pipeline then broadcasts it to the
// live widget. recipientID is the conversation id.
type WebChatNotifier struct {
	pipeline *pipeline.Pipeline
	store    pipeline.Store
}

// NewWebChatNotifier creates the web chat notification channel.
func NewWebChatNotifier(p *pipeline.Pipeline, store pipeline.Store) *WebChatNotifier {
	return &WebChatNotifier{pipeline: p, store: store}
}

func (n *WebChatNotifier) Name() string {
	return channel.SourceWebChat.String()
}

func (n *WebChatNotifier) Send(ctx context.Context, recipientID, message string, data map[string]any) error {
	conv, err := n.store.Get(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("resolve web chat conversation: %w", err)
	}
	if conv.Source != channel.SourceWebChat {
		return fmt.Errorf("conversation %s is not a web chat thread", recipientID)
	}
	sourceData := map[string]any{"notification": true}
	for key, value := range data {
		sourceData[key] = value
	}
	_, err = n.pipeline.AddMessage(ctx, conv, pipeline.Input{
		Direction:  conversation.DirectionOutgoing,
		Content:    message,
		SourceData: sourceData,
	})
	return err
}
