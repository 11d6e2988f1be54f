package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/omnidesk/omnidesk/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAuthConfig(password string) config.Config {
	return config.Config{
		Admin: config.AdminConfig{Username: "admin", Password: password},
		Auth:  config.AuthConfig{JWTSecret: "test-secret", JWTExpiresIn: "1h"},
	}
}

func doLogin(t *testing.T, h *AuthHandler, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return rec, h.Login(e.NewContext(req, rec))
}

func TestLoginPlainPassword(t *testing.T) {
	h := NewAuthHandler(testAuthConfig("topsecret"), discardLogger())

	rec, err := doLogin(t, h, `{"username": "admin", "password": "topsecret"}`)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" {
		t.Error("token missing")
	}
	if resp.ExpiresAt.IsZero() {
		t.Error("expires_at missing")
	}
}

func TestLoginBcryptPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("topsecret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	h := NewAuthHandler(testAuthConfig(string(hash)), discardLogger())

	rec, err := doLogin(t, h, `{"username": "admin", "password": "topsecret"}`)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestLoginRejected(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"wrong password", `{"username": "admin", "password": "nope"}`},
		{"wrong username", `{"username": "root", "password": "topsecret"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthHandler(testAuthConfig("topsecret"), discardLogger())
			_, err := doLogin(t, h, tt.body)
			httpErr, ok := err.(*echo.HTTPError)
			if !ok || httpErr.Code != http.StatusUnauthorized {
				t.Fatalf("err = %v, want 401", err)
			}
		})
	}
}

func TestLoginMissingFields(t *testing.T) {
	h := NewAuthHandler(testAuthConfig("topsecret"), discardLogger())
	_, err := doLogin(t, h, `{"username": "admin"}`)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
}

// An empty configured password must never allow an empty candidate through.
func TestLoginEmptyConfiguredPassword(t *testing.T) {
	h := NewAuthHandler(testAuthConfig(""), discardLogger())
	if h.passwordMatches("") {
		t.Error("empty password accepted")
	}
}
