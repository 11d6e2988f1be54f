// Package webchat implements the web chat channel adapter. Web chat has no
// external platform to deliver to: visitors hold a live websocket, so
// outbound delivery is a broadcast on the conversation channel and the
// message counts as delivered once persisted.
package webchat

import (
	"context"
	"log/slog"

	"github.com/omnidesk/omnidesk/internal/channel"
)

// Publisher broadcasts a payload on a named realtime channel.
type Publisher interface {
	Publish(name string, payload any)
}

// Adapter delivers web chat replies over the realtime hub.
type Adapter struct {
	logger    *slog.Logger
	publisher Publisher
}

// New creates a web chat adapter bound to the realtime hub.
func New(publisher Publisher, log *slog.Logger) *Adapter {
	return &Adapter{
		logger:    log.With(slog.String("adapter", "webchat")),
		publisher: publisher,
	}
}

func (a *Adapter) Source() channel.Source {
	return channel.SourceWebChat
}

// Send broadcasts the content on the visitor session channel. externalID is
// the web chat session id.
func (a *Adapter) Send(ctx context.Context, externalID, content string, attachments []channel.Attachment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.publisher.Publish("webchat."+externalID, map[string]any{
		"type":        "message",
		"content":     content,
		"attachments": attachments,
	})
	return nil
}
