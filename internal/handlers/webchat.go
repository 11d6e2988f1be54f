package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/auth"
	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/config"
	"github.com/omnidesk/omnidesk/internal/conversation"
	"github.com/omnidesk/omnidesk/internal/pipeline"
)

const visitorTokenTTL = 12 * time.Hour

// WebChatHandler serves the visitor-facing widget API. A visitor first opens
// a session, then posts messages with the session-scoped token.
type WebChatHandler struct {
	logger   *slog.Logger
	validate *validator.Validate
	authCfg  config.AuthConfig
	store    *conversation.Store
	pipe     *pipeline.Pipeline
}

func NewWebChatHandler(cfg config.Config, store *conversation.Store, pipe *pipeline.Pipeline, log *slog.Logger) *WebChatHandler {
	return &WebChatHandler{
		logger:   log.With(slog.String("handler", "webchat")),
		validate: validator.New(),
		authCfg:  cfg.Auth,
		store:    store,
		pipe:     pipe,
	}
}

func (h *WebChatHandler) Register(e *echo.Echo) {
	e.POST("/webchat/session", h.OpenSession)
	e.POST("/webchat/messages", h.PostMessage)
}

type openSessionRequest struct {
	ClientID string `json:"client_id,omitempty" validate:"omitempty,uuid"`
	Name     string `json:"name,omitempty"`
}

type openSessionResponse struct {
	SessionID      string    `json:"session_id"`
	ConversationID string    `json:"conversation_id"`
	Token          string    `json:"token"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// OpenSession creates a web chat session and its conversation. A logged-in
// shop customer passes their client id so the thread links to their account;
// anonymous visitors get a bare session.
func (h *WebChatHandler) OpenSession(c echo.Context) error {
	var req openSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "client_id must be a uuid")
	}

	sessionID := uuid.NewString()
	conv, err := h.store.FindOrCreate(c.Request().Context(), channel.SourceWebChat, sessionID, req.ClientID)
	if err != nil {
		h.logger.Error("web chat session create failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "could not open session")
	}

	token, expiresAt, err := auth.GenerateVisitorToken(sessionID, h.authCfg.JWTSecret, visitorTokenTTL)
	if err != nil {
		h.logger.Error("visitor token generation failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "could not issue token")
	}
	return c.JSON(http.StatusCreated, openSessionResponse{
		SessionID:      sessionID,
		ConversationID: conv.ID,
		Token:          token,
		ExpiresAt:      expiresAt,
	})
}

type postMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// PostMessage appends a visitor message to the session's conversation. It
// takes the same intake path as platform webhooks.
func (h *WebChatHandler) PostMessage(c echo.Context) error {
	sessionID, err := auth.VisitorSessionFromContext(c)
	if err != nil {
		return err
	}

	var req postMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil || strings.TrimSpace(req.Content) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content is required")
	}

	msg, err := h.pipe.HandleInbound(c.Request().Context(), channel.Inbound{
		Source:     channel.SourceWebChat,
		ExternalID: sessionID,
		Text:       strings.TrimSpace(req.Content),
		Timestamp:  time.Now(),
	})
	if err != nil {
		h.logger.Error("web chat message failed",
			slog.String("session_id", sessionID), slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "could not store message")
	}
	return c.JSON(http.StatusCreated, msg)
}
