package tg

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"conuco-bot/internal/metrics"
)

// MessageHandler processes one inbound message and returns the reply text.
type MessageHandler interface {
	Handle(ctx context.Context, contactID, text string) string
}

// Sender delivers outbound Telegram replies.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// update mirrors the slice of the Telegram update envelope we care about.
type update struct {
	Message struct {
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text string `json:"text"`
	} `json:"message"`
}

// WebhookHandler receives Telegram webhook calls, dispatches the message to
// the conversation engine and sends the reply. The boundary always answers:
// non-message updates get 200 with a status body, and processing errors
// never escape as panics.
type WebhookHandler struct {
	logger      *slog.Logger
	metrics     *metrics.Metrics
	secretToken string
	handler     MessageHandler
	sender      Sender
}

// NewWebhookHandler creates a new webhook handler. secretToken, when set,
// must match the X-Telegram-Bot-Api-Secret-Token header.
func NewWebhookHandler(logger *slog.Logger, metricRegistry *metrics.Metrics, secretToken string, handler MessageHandler, sender Sender) *WebhookHandler {
	return &WebhookHandler{
		logger:      logger.With("component", "telegram_webhook"),
		metrics:     metricRegistry,
		secretToken: secretToken,
		handler:     handler,
		sender:      sender,
	}
}

// ServeHTTP satisfies http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.secretToken != "" && r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != h.secretToken {
		if h.metrics != nil {
			h.metrics.Errors.WithLabelValues("telegram_webhook_auth").Inc()
		}
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var upd update
	if err := json.Unmarshal(body, &upd); err != nil {
		h.logger.Warn("malformed telegram update", "error", err)
		writeStatus(w, "bad update")
		return
	}

	text := strings.TrimSpace(upd.Message.Text)
	if upd.Message.Chat.ID == 0 || text == "" {
		writeStatus(w, "no message")
		return
	}

	chatID := strconv.FormatInt(upd.Message.Chat.ID, 10)
	if h.metrics != nil {
		h.metrics.IncomingMessages.WithLabelValues("telegram").Inc()
	}

	reply := h.handler.Handle(r.Context(), chatID, text)
	if reply != "" && h.sender != nil {
		if err := h.sender.SendMessage(r.Context(), chatID, reply); err != nil {
			h.logger.Error("failed sending telegram reply", "error", err, "chat", chatID)
			if h.metrics != nil {
				h.metrics.Errors.WithLabelValues("telegram_send").Inc()
			}
		}
	}

	writeStatus(w, "ok")
}

func writeStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
