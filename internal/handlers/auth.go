package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/omnidesk/omnidesk/internal/auth"
	"github.com/omnidesk/omnidesk/internal/config"
)

type AuthHandler struct {
	logger   *slog.Logger
	validate *validator.Validate
	admin    config.AdminConfig
	authCfg  config.AuthConfig
}

func NewAuthHandler(cfg config.Config, log *slog.Logger) *AuthHandler {
	return &AuthHandler{
		logger:   log.With(slog.String("handler", "auth")),
		validate: validator.New(),
		admin:    cfg.Admin,
		authCfg:  cfg.Auth,
	}
}

func (h *AuthHandler) Register(e *echo.Echo) {
	e.POST("/auth/login", h.Login)
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login authenticates the operator against the config-seeded admin account.
// The configured password may be a bcrypt hash; a plain value is compared
// directly to keep local setups simple.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "username and password are required")
	}

	if req.Username != h.admin.Username || !h.passwordMatches(req.Password) {
		h.logger.Warn("login rejected", slog.String("username", req.Username))
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	expiresIn, err := time.ParseDuration(h.authCfg.JWTExpiresIn)
	if err != nil || expiresIn <= 0 {
		expiresIn = 24 * time.Hour
	}
	token, expiresAt, err := auth.GenerateToken(req.Username, h.authCfg.JWTSecret, expiresIn)
	if err != nil {
		h.logger.Error("token generation failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "could not issue token")
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

func (h *AuthHandler) passwordMatches(candidate string) bool {
	stored := h.admin.Password
	if len(stored) > 4 && stored[0] == '$' {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil
	}
	return stored != "" && stored == candidate
}
