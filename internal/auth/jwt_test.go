package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const testSecret = "test-secret"

func contextWithToken(t *testing.T, signed string) echo.Context {
	t.Helper()
	token, err := jwt.Parse(signed, func(tok *jwt.Token) (any, error) {
		return []byte(testSecret), nil
	})
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.Set("user", token)
	return c
}

func TestOperatorTokenRoundTrip(t *testing.T) {
	signed, expiresAt, err := GenerateToken("admin", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Errorf("expiresAt in the past: %s", expiresAt)
	}

	c := contextWithToken(t, signed)
	userID, err := UserIDFromContext(c)
	if err != nil {
		t.Fatalf("UserIDFromContext: %v", err)
	}
	if userID != "admin" {
		t.Errorf("userID = %q", userID)
	}
	if IsVisitor(c) {
		t.Error("operator token reported as visitor")
	}
	if _, err := VisitorSessionFromContext(c); err == nil {
		t.Error("operator token accepted as visitor token")
	}
}

func TestVisitorTokenRoundTrip(t *testing.T) {
	signed, _, err := GenerateVisitorToken("sess-42", testSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateVisitorToken: %v", err)
	}

	c := contextWithToken(t, signed)
	if !IsVisitor(c) {
		t.Error("visitor token not detected")
	}
	sessionID, err := VisitorSessionFromContext(c)
	if err != nil {
		t.Fatalf("VisitorSessionFromContext: %v", err)
	}
	if sessionID != "sess-42" {
		t.Errorf("sessionID = %q", sessionID)
	}

	// A visitor token must never pass operator extraction.
	if _, err := UserIDFromContext(c); err == nil {
		t.Error("visitor token accepted as operator token")
	}
}

func TestGenerateTokenValidation(t *testing.T) {
	if _, _, err := GenerateToken("", testSecret, time.Hour); err == nil {
		t.Error("empty user id accepted")
	}
	if _, _, err := GenerateToken("admin", "", time.Hour); err == nil {
		t.Error("empty secret accepted")
	}
	if _, _, err := GenerateToken("admin", testSecret, 0); err == nil {
		t.Error("zero expiry accepted")
	}
	if _, _, err := GenerateVisitorToken("", testSecret, time.Hour); err == nil {
		t.Error("empty session id accepted")
	}
}

func TestContextWithoutToken(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if _, err := UserIDFromContext(c); err == nil {
		t.Error("missing token accepted")
	}
	if IsVisitor(c) {
		t.Error("missing token reported as visitor")
	}
}
