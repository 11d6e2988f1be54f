package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/notify"
)

// NotifyHandler exposes the notification fan-out to backend callers (order
// status jobs, campaign tooling, operator alerts).
type NotifyHandler struct {
	logger     *slog.Logger
	validate   *validator.Validate
	dispatcher *notify.Dispatcher
}

func NewNotifyHandler(dispatcher *notify.Dispatcher, log *slog.Logger) *NotifyHandler {
	return &NotifyHandler{
		logger:     log.With(slog.String("handler", "notify")),
		validate:   validator.New(),
		dispatcher: dispatcher,
	}
}

func (h *NotifyHandler) Register(e *echo.Echo) {
	e.POST("/notify", h.Send)
	e.GET("/notify/channels", h.Channels)
}

type notifyRequest struct {
	Channels    []string       `json:"channels" validate:"required,min=1"`
	RecipientID string         `json:"recipient_id" validate:"required"`
	Message     string         `json:"message" validate:"required"`
	Data        map[string]any `json:"data,omitempty"`
}

// Send fans the notification out over the requested channels. The response
// reports per-channel success; the call itself never fails on a delivery
// error.
func (h *NotifyHandler) Send(c echo.Context) error {
	var req notifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "channels, recipient_id and message are required")
	}

	results := h.dispatcher.SendViaChannels(c.Request().Context(), req.Channels, req.RecipientID, req.Message, req.Data)
	return c.JSON(http.StatusOK, map[string]any{"results": results})
}

func (h *NotifyHandler) Channels(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"channels": h.dispatcher.Channels()})
}
