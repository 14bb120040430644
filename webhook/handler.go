package webhook

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/pr-poehali-dev/telegram-feedback-bot/core/logger"
)

// Handler adapts the dispatcher to the single webhook endpoint Telegram
// calls for every registered bot. The target token travels in the
// bot_token query parameter set at webhook registration time.
type Handler struct {
	dispatcher *Dispatcher
}

func NewHandler(d *Dispatcher) *Handler {
	return &Handler{dispatcher: d}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	token := r.URL.Query().Get("bot_token")
	if token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bot_token is required"})
		return
	}

	var upd tele.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		// Telegram retries non-200 responses; a body this service cannot
		// parse will not parse on retry either.
		logger.Warn(r.Context(), "web", "malformed update", slog.Any("err", err))
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	err := h.dispatcher.Handle(r.Context(), token, &upd)
	logger.Info(r.Context(), "web", "update handled",
		slog.String("status", logger.Status(err)),
		slog.Int64("duration_ms", logger.Took(started).Milliseconds()))

	switch {
	case errors.Is(err, ErrUnknownBot):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Bot not found"})
	case err != nil:
		logger.Error(r.Context(), "web", "update failed", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Internal server error"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
