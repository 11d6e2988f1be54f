// Package email implements the email channel adapter. Outbound mail goes
// through a configurable provider (generic SMTP or Mailgun); inbound mail is
// picked up by an IMAP receiver and fed into the same intake path as the
// webhook channels. Email has no read receipts, so the adapter implements no
// read marking and callers treat that as success.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/config"
)

// Adapter sends conversation replies as email messages.
type Adapter struct {
	logger        *slog.Logger
	provider      Provider
	subjectPrefix string
}

// New creates an email adapter over the given outbound provider.
func New(provider Provider, cfg config.EmailConfig, log *slog.Logger) *Adapter {
	return &Adapter{
		logger:        log.With(slog.String("adapter", "email")),
		provider:      provider,
		subjectPrefix: strings.TrimSpace(cfg.SubjectPrefix),
	}
}

func (a *Adapter) Source() channel.Source {
	return channel.SourceEmail
}

// Send delivers the content to the address identified by externalID.
// Attachments are appended as links; inline MIME parts are not produced.
func (a *Adapter) Send(ctx context.Context, externalID, content string, attachments []channel.Attachment) error {
	addr := strings.TrimSpace(externalID)
	if _, err := mail.ParseAddress(addr); err != nil {
		return fmt.Errorf("email external id must be an address: %q", externalID)
	}

	body := strings.TrimSpace(content)
	var links []string
	for _, att := range attachments {
		if att.HasReference() {
			links = append(links, att.URL)
		}
	}
	if len(links) > 0 {
		if body != "" {
			body += "\n\n"
		}
		body += strings.Join(links, "\n")
	}
	if body == "" {
		return fmt.Errorf("email message is empty")
	}

	subject := "New message"
	if a.subjectPrefix != "" {
		subject = a.subjectPrefix + " " + subject
	}

	messageID, err := a.provider.Send(ctx, OutboundEmail{
		To:      []string{addr},
		Subject: subject,
		Body:    body,
	})
	if err != nil {
		return err
	}
	a.logger.Debug("email sent", slog.String("to", addr), slog.String("message_id", messageID))
	return nil
}
