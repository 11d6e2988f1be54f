package email

import (
	"context"
	"fmt"
	"strings"

	mg "github.com/mailgun/mailgun-go/v5"
	gomail "github.com/wneessen/go-mail"

	"github.com/omnidesk/omnidesk/internal/config"
)

// OutboundEmail is a provider-agnostic outgoing message.
type OutboundEmail struct {
	To      []string
	Subject string
	Body    string
	HTML    bool
}

// Provider delivers outbound email. Implementations return the provider
// message id when available.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg OutboundEmail) (string, error)
}

// NewProvider builds the provider selected in config.
func NewProvider(cfg config.EmailConfig) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "generic":
		return &smtpProvider{cfg: cfg}, nil
	case "mailgun":
		if cfg.Mailgun.Domain == "" || cfg.Mailgun.APIKey == "" {
			return nil, fmt.Errorf("mailgun provider requires domain and api_key")
		}
		client := mg.NewMailgun(cfg.Mailgun.APIKey)
		if strings.EqualFold(cfg.Mailgun.Region, "eu") {
			client.SetAPIBase(mg.APIBaseEU)
		}
		return &mailgunProvider{cfg: cfg, client: client}, nil
	default:
		return nil, fmt.Errorf("unknown email provider: %s", cfg.Provider)
	}
}

// ---- Generic SMTP ----

type smtpProvider struct {
	cfg config.EmailConfig
}

func (p *smtpProvider) Name() string { return "generic" }

func (p *smtpProvider) Send(ctx context.Context, msg OutboundEmail) (string, error) {
	smtp := p.cfg.SMTP
	from := p.cfg.FromAddress
	if from == "" {
		from = smtp.Username
	}

	m := gomail.NewMsg()
	if err := m.From(from); err != nil {
		return "", fmt.Errorf("set from: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return "", fmt.Errorf("set to: %w", err)
	}
	m.Subject(msg.Subject)
	if msg.HTML {
		m.SetBodyString(gomail.TypeTextHTML, msg.Body)
	} else {
		m.SetBodyString(gomail.TypeTextPlain, msg.Body)
	}
	m.SetMessageID()

	opts := []gomail.Option{
		gomail.WithPort(smtp.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(smtp.Username),
		gomail.WithPassword(smtp.Password),
	}
	switch smtp.Security {
	case "tls":
		opts = append(opts, gomail.WithSSLPort(false), gomail.WithTLSPolicy(gomail.TLSMandatory))
	case "starttls":
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}

	client, err := gomail.NewClient(smtp.Host, opts...)
	if err != nil {
		return "", fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	return m.GetMessageID(), nil
}

// ---- Mailgun ----

type mailgunProvider struct {
	cfg    config.EmailConfig
	client *mg.Client
}

func (p *mailgunProvider) Name() string { return "mailgun" }

func (p *mailgunProvider) Send(ctx context.Context, msg OutboundEmail) (string, error) {
	domain := p.cfg.Mailgun.Domain
	from := p.cfg.FromAddress
	if from == "" {
		from = fmt.Sprintf("noreply@%s", domain)
	}

	m := mg.NewMessage(domain, from, msg.Subject, msg.Body, msg.To...)
	if msg.HTML {
		m.SetHTML(msg.Body)
	}

	resp, err := p.client.Send(ctx, m)
	if err != nil {
		return "", fmt.Errorf("mailgun send: %w", err)
	}
	return resp.ID, nil
}
