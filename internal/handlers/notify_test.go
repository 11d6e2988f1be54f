package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/omnidesk/internal/notify"
)

type stubNotifier struct {
	name    string
	sendErr error
	calls   int
}

func (n *stubNotifier) Name() string { return n.name }

func (n *stubNotifier) Send(ctx context.Context, recipientID, message string, data map[string]any) error {
	n.calls++
	return n.sendErr
}

func doNotify(t *testing.T, h *NotifyHandler, body string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return rec, h.Send(e.NewContext(req, rec))
}

func TestNotifySendFanOut(t *testing.T) {
	dispatcher := notify.NewDispatcher(discardLogger())
	tg := &stubNotifier{name: "telegram"}
	mail := &stubNotifier{name: "email", sendErr: errors.New("smtp down")}
	dispatcher.Register(tg)
	dispatcher.Register(mail)
	h := NewNotifyHandler(dispatcher, discardLogger())

	rec, err := doNotify(t, h, `{
		"channels": ["telegram", "email"],
		"recipient_id": "12345",
		"message": "your order #77 shipped"
	}`)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1, tg.calls)
	assert.Equal(t, 1, mail.calls)
	assert.JSONEq(t, `{"results": {"telegram": true, "email": false}}`, rec.Body.String())
}

func TestNotifySendValidation(t *testing.T) {
	h := NewNotifyHandler(notify.NewDispatcher(discardLogger()), discardLogger())

	tests := []struct {
		name string
		body string
	}{
		{"no channels", `{"recipient_id": "1", "message": "hi"}`},
		{"empty channels", `{"channels": [], "recipient_id": "1", "message": "hi"}`},
		{"no message", `{"channels": ["telegram"], "recipient_id": "1"}`},
		{"no recipient", `{"channels": ["telegram"], "message": "hi"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := doNotify(t, h, tt.body)
			var httpErr *echo.HTTPError
			require.ErrorAs(t, err, &httpErr)
			assert.Equal(t, http.StatusBadRequest, httpErr.Code)
		})
	}
}

func TestNotifyChannels(t *testing.T) {
	dispatcher := notify.NewDispatcher(discardLogger())
	dispatcher.Register(&stubNotifier{name: "telegram"})
	h := NewNotifyHandler(dispatcher, discardLogger())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/notify/channels", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h.Channels(e.NewContext(req, rec)))
	assert.JSONEq(t, `{"channels": ["telegram"]}`, rec.Body.String())
}
