// Package server assembles the echo HTTP server from independently
// registered handlers.
package server

import (
	"context"
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/omnidesk/omnidesk/internal/auth"
)

// Handler registers a group of routes on the server.
type Handler interface {
	Register(e *echo.Echo)
}

// Server wraps echo with the hub's middleware stack.
type Server struct {
	echo *echo.Echo
	addr string
}

var (
	jwtExactSkipPaths = map[string]struct{}{
		"/ping":            {},
		"/health":          {},
		"/auth/login":      {},
		"/webchat/session": {},
	}
	jwtPrefixSkipPaths = []string{
		"/webhooks/",
	}
)

func shouldSkipJWT(path string) bool {
	if _, ok := jwtExactSkipPaths[path]; ok {
		return true
	}
	for _, prefix := range jwtPrefixSkipPaths {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// New builds the server. Webhook intake and the visitor session endpoint
// stay public; everything else requires a JWT (operator or visitor).
func New(addr, jwtSecret string, log *slog.Logger, handlers []Handler) *Server {
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", c.RealIP()),
			)
			return nil
		},
	}))
	e.Use(auth.JWTMiddleware(jwtSecret, func(c echo.Context) bool {
		return shouldSkipJWT(c.Request().URL.Path)
	}))

	for _, h := range handlers {
		if h != nil {
			h.Register(e)
		}
	}

	return &Server{echo: e, addr: addr}
}

// Start begins serving; it blocks until shutdown.
func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
