package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/conversation"
	"github.com/omnidesk/omnidesk/internal/pipeline"
)

// ConversationsHandler serves the operator conversation API.
type ConversationsHandler struct {
	logger   *slog.Logger
	validate *validator.Validate
	store    *conversation.Store
	pipe     *pipeline.Pipeline
}

func NewConversationsHandler(store *conversation.Store, pipe *pipeline.Pipeline, log *slog.Logger) *ConversationsHandler {
	return &ConversationsHandler{
		logger:   log.With(slog.String("handler", "conversations")),
		validate: validator.New(),
		store:    store,
		pipe:     pipe,
	}
}

func (h *ConversationsHandler) Register(e *echo.Echo) {
	e.GET("/conversations", h.List)
	e.GET("/conversations/:id", h.Get)
	e.POST("/conversations/:id/close", h.Close)
	e.POST("/conversations/:id/read", h.MarkRead)
	e.POST("/conversations/:id/messages", h.Reply)
	e.POST("/messages/:id/resend", h.Resend)
}

func (h *ConversationsHandler) List(c echo.Context) error {
	filter := conversation.ListFilter{
		Status: conversation.Status(strings.TrimSpace(c.QueryParam("status"))),
	}
	if raw := strings.TrimSpace(c.QueryParam("source")); raw != "" {
		source, ok := channel.ParseSource(raw)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown source")
		}
		filter.Source = source
	}
	filter.Limit, _ = strconv.Atoi(c.QueryParam("limit"))
	filter.Offset, _ = strconv.Atoi(c.QueryParam("offset"))

	items, err := h.store.List(c.Request().Context(), filter)
	if err != nil {
		h.logger.Error("list conversations failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "list failed")
	}
	return c.JSON(http.StatusOK, map[string]any{"conversations": items})
}

func (h *ConversationsHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	conv, err := h.store.Get(ctx, c.Param("id"))
	if errors.Is(err, conversation.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	messages, err := h.store.ListMessages(ctx, conv.ID, limit, offset)
	if err != nil {
		h.logger.Error("list messages failed",
			slog.String("conversation_id", conv.ID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "list messages failed")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"conversation": conv,
		"messages":     messages,
	})
}

func (h *ConversationsHandler) Close(c echo.Context) error {
	err := h.store.Close(c.Request().Context(), c.Param("id"))
	if errors.Is(err, conversation.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "close failed")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "closed"})
}

func (h *ConversationsHandler) MarkRead(c echo.Context) error {
	err := h.pipe.MarkConversationRead(c.Request().Context(), c.Param("id"))
	if errors.Is(err, conversation.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "mark read failed")
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "read"})
}

type replyRequest struct {
	Content     string            `json:"content"`
	ContentType string            `json:"content_type,omitempty"`
	Attachments []replyAttachment `json:"attachments,omitempty"`
}

type replyAttachment struct {
	Type     string `json:"type" validate:"required"`
	URL      string `json:"url" validate:"required,url"`
	FileName string `json:"file_name,omitempty"`
	FileSize int64  `json:"file_size,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// Reply appends an operator message and dispatches it to the customer's
// platform. A platform delivery failure still returns 201: the message is
// stored with status failed and queued for retry.
func (h *ConversationsHandler) Reply(c echo.Context) error {
	ctx := c.Request().Context()
	conv, err := h.store.Get(ctx, c.Param("id"))
	if errors.Is(err, conversation.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}

	var req replyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	for _, att := range req.Attachments {
		if err := h.validate.Struct(att); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid attachment")
		}
	}

	attachments := make([]conversation.Attachment, 0, len(req.Attachments))
	for _, att := range req.Attachments {
		attachments = append(attachments, conversation.Attachment{
			Type:     att.Type,
			URL:      att.URL,
			FileName: att.FileName,
			FileSize: att.FileSize,
			MimeType: att.MimeType,
		})
	}

	msg, err := h.pipe.AddMessage(ctx, conv, pipeline.Input{
		Direction:   conversation.DirectionOutgoing,
		Content:     strings.TrimSpace(req.Content),
		ContentType: conversation.ContentType(req.ContentType),
		Attachments: attachments,
	})
	if errors.Is(err, pipeline.ErrInvalidInput) {
		return echo.NewHTTPError(http.StatusBadRequest, "content or attachments required")
	}
	if err != nil {
		h.logger.Error("reply failed",
			slog.String("conversation_id", conv.ID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "reply failed")
	}
	return c.JSON(http.StatusCreated, msg)
}

func (h *ConversationsHandler) Resend(c echo.Context) error {
	msg, err := h.pipe.Resend(c.Request().Context(), c.Param("id"))
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "message not found")
	case errors.Is(err, pipeline.ErrNotResendable):
		return echo.NewHTTPError(http.StatusConflict, "message is not in a failed state")
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, "resend failed")
	}
	return c.JSON(http.StatusOK, msg)
}
