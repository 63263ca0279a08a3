package tg

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeHandler struct {
	contactID string
	text      string
	reply     string
}

func (f *fakeHandler) Handle(_ context.Context, contactID, text string) string {
	f.contactID = contactID
	f.text = text
	return f.reply
}

type fakeSender struct {
	chatID string
	text   string
	err    error
}

func (f *fakeSender) SendMessage(_ context.Context, chatID, text string) error {
	f.chatID = chatID
	f.text = text
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func postUpdate(t *testing.T, h http.Handler, body, secret string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/telegram", strings.NewReader(body))
	if secret != "" {
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", secret)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body["status"]
}

func TestWebhookDispatchesMessage(t *testing.T) {
	handler := &fakeHandler{reply: "hola de vuelta"}
	sender := &fakeSender{}
	h := NewWebhookHandler(testLogger(), nil, "", handler, sender)

	rec := postUpdate(t, h, `{"message": {"chat": {"id": 12345}, "text": "REPORTE"}}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decodeStatus(t, rec); got != "ok" {
		t.Fatalf("expected ok status, got %q", got)
	}

	if handler.contactID != "12345" || handler.text != "REPORTE" {
		t.Fatalf("unexpected dispatch: contact=%q text=%q", handler.contactID, handler.text)
	}
	if sender.chatID != "12345" || sender.text != "hola de vuelta" {
		t.Fatalf("unexpected reply send: chat=%q text=%q", sender.chatID, sender.text)
	}
}

func TestWebhookSecretTokenMismatch(t *testing.T) {
	handler := &fakeHandler{reply: "x"}
	h := NewWebhookHandler(testLogger(), nil, "expected-secret", handler, &fakeSender{})

	rec := postUpdate(t, h, `{"message": {"chat": {"id": 1}, "text": "hola"}}`, "wrong")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if handler.text != "" {
		t.Fatalf("handler must not run on auth failure, got %q", handler.text)
	}
}

func TestWebhookSecretTokenMatch(t *testing.T) {
	handler := &fakeHandler{reply: "x"}
	h := NewWebhookHandler(testLogger(), nil, "expected-secret", handler, &fakeSender{})

	rec := postUpdate(t, h, `{"message": {"chat": {"id": 1}, "text": "hola"}}`, "expected-secret")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestWebhookNonMessageUpdate(t *testing.T) {
	handler := &fakeHandler{reply: "x"}
	h := NewWebhookHandler(testLogger(), nil, "", handler, &fakeSender{})

	rec := postUpdate(t, h, `{"edited_message": {"chat": {"id": 1}}}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("non-message updates must be acknowledged, got %d", rec.Code)
	}
	if got := decodeStatus(t, rec); got != "no message" {
		t.Fatalf("expected no-message status, got %q", got)
	}
	if handler.text != "" {
		t.Fatalf("handler must not run without a message, got %q", handler.text)
	}
}

func TestWebhookMalformedBody(t *testing.T) {
	h := NewWebhookHandler(testLogger(), nil, "", &fakeHandler{}, &fakeSender{})

	rec := postUpdate(t, h, `{not json`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("malformed updates must still get 200, got %d", rec.Code)
	}
	if got := decodeStatus(t, rec); got != "bad update" {
		t.Fatalf("expected bad-update status, got %q", got)
	}
}

func TestWebhookSendFailureStillAcks(t *testing.T) {
	handler := &fakeHandler{reply: "respuesta"}
	sender := &fakeSender{err: context.DeadlineExceeded}
	h := NewWebhookHandler(testLogger(), nil, "", handler, sender)

	rec := postUpdate(t, h, `{"message": {"chat": {"id": 7}, "text": "AYUDA"}}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("send failures must not fail the webhook, got %d", rec.Code)
	}
	if got := decodeStatus(t, rec); got != "ok" {
		t.Fatalf("expected ok status, got %q", got)
	}
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	h := NewWebhookHandler(testLogger(), nil, "", &fakeHandler{}, &fakeSender{})
	req := httptest.NewRequest(http.MethodGet, "/webhook/telegram", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
