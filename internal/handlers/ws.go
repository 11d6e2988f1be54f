package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/omnidesk/omnidesk/internal/auth"
	"github.com/omnidesk/omnidesk/internal/channel"
	"github.com/omnidesk/omnidesk/internal/conversation"
	"github.com/omnidesk/omnidesk/internal/realtime"
)

// WSHandler upgrades clients onto the realtime hub. Operators pick their
// channels with ?channels=...; visitors are pinned to their own session
// regardless of what they ask for.
type WSHandler struct {
	logger   *slog.Logger
	hub      *realtime.Hub
	store    *conversation.Store
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *realtime.Hub, store *conversation.Store, log *slog.Logger) *WSHandler {
	return &WSHandler{
		logger: log.With(slog.String("handler", "ws")),
		hub:    hub,
		store:  store,
		upgrader: websocket.Upgrader{
			// The JWT on the upgrade request is the access control; the
			// widget runs on shop domains we do not enumerate here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) Register(e *echo.Echo) {
	e.GET("/ws", h.Connect)
}

func (h *WSHandler) Connect(c echo.Context) error {
	channels, err := h.resolveChannels(c)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "channels query parameter is required")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}
	defer conn.Close()

	h.hub.Subscribe(conn, channels)
	defer h.hub.Unsubscribe(conn)
	h.logger.Debug("websocket subscribed", slog.Any("channels", channels))

	// Drain the connection; clients only listen on this socket.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

func (h *WSHandler) resolveChannels(c echo.Context) ([]string, error) {
	if auth.IsVisitor(c) {
		sessionID, err := auth.VisitorSessionFromContext(c)
		if err != nil {
			return nil, err
		}
		channels := []string{"webchat." + sessionID}
		conv, err := h.store.FindOrCreate(c.Request().Context(), channel.SourceWebChat, sessionID, "")
		if err == nil {
			channels = append(channels, realtime.ConversationChannel(conv.ID))
		}
		return channels, nil
	}

	if _, err := auth.UserIDFromContext(c); err != nil {
		return nil, err
	}
	var channels []string
	for _, name := range strings.Split(c.QueryParam("channels"), ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			channels = append(channels, name)
		}
	}
	return channels, nil
}
