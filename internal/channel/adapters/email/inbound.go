package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/config"
)

// InboundHandler receives a normalized inbound event plus the email
// Message-ID used for deduplication.
type InboundHandler func(ctx context.Context, in channel.Inbound, eventID string)

// Receiver watches an IMAP inbox and feeds new mail into the intake path.
// It prefers IDLE and falls back to polling when the server lacks it.
type Receiver struct {
	logger       *slog.Logger
	cfg          config.IMAPConfig
	handler      InboundHandler
	pollInterval time.Duration

	cancel  context.CancelFunc
	once    sync.Once
	done    chan struct{}
	lastUID imap.UID
}

// NewReceiver creates an IMAP receiver. Start must be called to begin
// watching the inbox.
func NewReceiver(cfg config.IMAPConfig, handler InboundHandler, log *slog.Logger) *Receiver {
	interval := time.Duration(cfg.PollIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Receiver{
		logger:       log.With(slog.String("service", "email_receiver")),
		cfg:          cfg,
		handler:      handler,
		pollInterval: interval,
		done:         make(chan struct{}),
	}
}

// Start launches the receive loop in the background.
func (r *Receiver) Start(ctx context.Context) {
	rctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	go r.run(rctx)
}

// Stop terminates the receive loop.
func (r *Receiver) Stop(ctx context.Context) error {
	r.once.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
	})
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Receiver) run(ctx context.Context) {
	defer close(r.done)
	for {
		if err := r.connectAndReceive(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.logger.Error("imap connection error, retrying in 30s", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(30 * time.Second):
			}
			continue
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (r *Receiver) connectAndReceive(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", r.cfg.Host, r.cfg.Port)

	newMailCh := make(chan struct{}, 1)
	notifyNewMail := func() {
		select {
		case newMailCh <- struct{}{}:
		default:
		}
	}

	opts := &imapclient.Options{
		TLSConfig: &tls.Config{ServerName: r.cfg.Host},
		UnilateralDataHandler: &imapclient.UnilateralDataHandler{
			Mailbox: func(data *imapclient.UnilateralDataMailbox) {
				if data.NumMessages != nil {
					notifyNewMail()
				}
			},
		},
	}
	var client *imapclient.Client
	var err error
	switch r.cfg.Security {
	case "starttls":
		client, err = imapclient.DialStartTLS(addr, opts)
	case "none":
		client, err = imapclient.DialInsecure(addr, opts)
	default:
		client, err = imapclient.DialTLS(addr, opts)
	}
	if err != nil {
		return fmt.Errorf("dial imap (%s): %w", r.cfg.Security, err)
	}
	defer client.Close()

	if err := client.Login(r.cfg.Username, r.cfg.Password).Wait(); err != nil {
		return fmt.Errorf("imap login: %w", err)
	}
	defer client.Logout()

	if _, err := client.Select("INBOX", nil).Wait(); err != nil {
		return fmt.Errorf("select inbox: %w", err)
	}

	r.logger.Info("imap connected", slog.String("host", r.cfg.Host), slog.Int("port", r.cfg.Port))
	r.fetchNewMessages(ctx, client)

	idleCmd, idleErr := client.Idle()
	if idleErr != nil {
		r.logger.Warn("IDLE not supported, falling back to polling", slog.Any("error", idleErr))
		return r.pollLoop(ctx, client)
	}

	// Even with IDLE, periodically re-check: some servers accept IDLE but
	// never push EXISTS notifications.
	checkInterval := r.pollInterval
	if checkInterval > 2*time.Minute {
		checkInterval = 2 * time.Minute
	}

	for {
		select {
		case <-ctx.Done():
			_ = idleCmd.Close()
			return nil
		case <-newMailCh:
			_ = idleCmd.Close()
			r.fetchNewMessages(ctx, client)
			idleCmd, idleErr = client.Idle()
			if idleErr != nil {
				return r.pollLoop(ctx, client)
			}
		case <-time.After(checkInterval):
			_ = idleCmd.Close()
			r.fetchNewMessages(ctx, client)
			idleCmd, idleErr = client.Idle()
			if idleErr != nil {
				return r.pollLoop(ctx, client)
			}
		}
	}
}

func (r *Receiver) pollLoop(ctx context.Context, client *imapclient.Client) error {
	for {
		r.fetchNewMessages(ctx, client)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.pollInterval):
		}
	}
}

func (r *Receiver) fetchNewMessages(ctx context.Context, client *imapclient.Client) {
	// UID range newer than the last processed message; independent of the
	// \Seen flag so other clients reading mail do not interfere.
	var uidSet imap.UIDSet
	if r.lastUID > 0 {
		uidSet.AddRange(r.lastUID+1, 0)
	} else {
		uidSet.AddRange(1, 0)
	}

	fetchOpts := &imap.FetchOptions{
		Envelope:    true,
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{{}},
	}
	fetchCmd := client.Fetch(uidSet, fetchOpts)
	defer fetchCmd.Close()

	isFirstRun := r.lastUID == 0
	processed := 0

	for {
		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}
		buf, err := msgData.Collect()
		if err != nil || buf.Envelope == nil {
			continue
		}
		if buf.UID > r.lastUID {
			r.lastUID = buf.UID
		}
		// On first run only record the highest UID; the backlog is not
		// re-imported into conversations.
		if isFirstRun {
			continue
		}

		in, eventID, ok := bufToInbound(buf)
		if !ok {
			continue
		}
		processed++
		r.handler(ctx, in, eventID)
	}

	if processed > 0 {
		r.logger.Info("imap fetch completed", slog.Int("processed", processed), slog.Uint64("last_uid", uint64(r.lastUID)))
	}
}

func bufToInbound(buf *imapclient.FetchMessageBuffer) (channel.Inbound, string, bool) {
	env := buf.Envelope
	if env == nil || len(env.From) == 0 {
		return channel.Inbound{}, "", false
	}

	var bodyText string
	if len(buf.BodySection) > 0 {
		bodyText = string(buf.BodySection[0].Bytes)
	}

	from := env.From[0].Addr()
	text := strings.TrimSpace(bodyText)
	if subject := strings.TrimSpace(env.Subject); subject != "" {
		if text != "" {
			text = subject + "\n\n" + text
		} else {
			text = subject
		}
	}
	if text == "" {
		return channel.Inbound{}, "", false
	}

	in := channel.Inbound{
		Source:            channel.SourceEmail,
		ExternalID:        from,
		Text:              text,
		ExternalMessageID: env.MessageID,
		Timestamp:         env.Date,
		Profile:           map[string]string{"email": from},
	}
	if name := strings.TrimSpace(env.From[0].Name); name != "" {
		in.Profile["name"] = name
	}
	return in, env.MessageID, true
}
