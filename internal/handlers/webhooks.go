package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/channel/adapters/telegram"
	"github.com/omnidesk/omnidesk/internal/channel/adapters/vk"
	"github.com/omnidesk/omnidesk/internal/channel/adapters/whatsapp"
	"github.com/omnidesk/omnidesk/internal/conversation"
)

const maxWebhookBody = 1 << 20

// Intake is the slice of the pipeline webhook processing needs.
type Intake interface {
	HandleInbound(ctx context.Context, in channel.Inbound) (conversation.Message, error)
}

// EventLedger is the slice of the dedup ledger webhook processing needs.
type EventLedger interface {
	Seen(ctx context.Context, source channel.Source, eventID string) (bool, error)
	Record(ctx context.Context, source channel.Source, eventID, eventType string, payload []byte) error
}

// WebhooksHandler receives platform callbacks. Every endpoint follows the
// same contract: parse, skip if already seen, process, record, and always
// acknowledge with 200 so the platform does not retry-storm on our internal
// errors.
type WebhooksHandler struct {
	logger   *slog.Logger
	dedup    EventLedger
	intake   Intake
	telegram *telegram.Adapter
	vk       *vk.Adapter
	whatsapp *whatsapp.Adapter
}

func NewWebhooksHandler(dedup EventLedger, intake Intake,
	tg *telegram.Adapter, vkAdapter *vk.Adapter, wa *whatsapp.Adapter, log *slog.Logger) *WebhooksHandler {
	return &WebhooksHandler{
		logger:   log.With(slog.String("handler", "webhooks")),
		dedup:    dedup,
		intake:   intake,
		telegram: tg,
		vk:       vkAdapter,
		whatsapp: wa,
	}
}

func (h *WebhooksHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/telegram", h.Telegram)
	e.POST("/webhooks/vk", h.VK)
	e.POST("/webhooks/whatsapp", h.WhatsApp)
}

func (h *WebhooksHandler) Telegram(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return c.NoContent(http.StatusOK)
	}
	in, eventID, ok := h.telegram.ParseUpdate(body)
	if !ok {
		return c.NoContent(http.StatusOK)
	}
	h.process(c.Request().Context(), in, eventID, "message", body)
	return c.NoContent(http.StatusOK)
}

// VK answers confirmation probes with the configured code; everything else
// gets the literal "ok" body the Callback API expects.
func (h *WebhooksHandler) VK(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return c.String(http.StatusOK, "ok")
	}
	eventType, in, eventID, err := h.vk.ParseCallback(body)
	if err != nil {
		h.logger.Warn("vk callback rejected", slog.String("error", err.Error()))
		return c.String(http.StatusOK, "ok")
	}
	switch eventType {
	case vk.EventConfirmation:
		return c.String(http.StatusOK, h.vk.ConfirmationCode())
	case vk.EventMessageNew:
		h.process(c.Request().Context(), in, eventID, eventType, body)
	}
	return c.String(http.StatusOK, "ok")
}

func (h *WebhooksHandler) WhatsApp(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return c.NoContent(http.StatusOK)
	}
	in, eventID, err := h.whatsapp.ParseWebhook(body)
	if err != nil {
		h.logger.Warn("whatsapp webhook rejected", slog.String("error", err.Error()))
		return c.NoContent(http.StatusOK)
	}
	h.process(c.Request().Context(), in, eventID, "message", body)
	return c.NoContent(http.StatusOK)
}

// process runs the dedup-then-handle sequence. The event is recorded only
// after the pipeline succeeds, so a crash mid-way lets the platform
// redeliver instead of losing the message.
func (h *WebhooksHandler) process(ctx context.Context, in channel.Inbound, eventID, eventType string, payload []byte) {
	seen, err := h.dedup.Seen(ctx, in.Source, eventID)
	if err != nil {
		h.logger.Error("dedup lookup failed",
			slog.String("source", in.Source.String()), slog.Any("error", err))
		return
	}
	if seen {
		h.logger.Debug("duplicate webhook event skipped",
			slog.String("source", in.Source.String()), slog.String("event_id", eventID))
		return
	}
	if _, err := h.intake.HandleInbound(ctx, in); err != nil {
		h.logger.Error("inbound processing failed",
			slog.String("source", in.Source.String()), slog.Any("error", err))
		return
	}
	if err := h.dedup.Record(ctx, in.Source, eventID, eventType, payload); err != nil {
		h.logger.Error("dedup record failed",
			slog.String("source", in.Source.String()), slog.Any("error", err))
	}
}

func readBody(c echo.Context) ([]byte, error) {
	return io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
}
