// Package botapi exposes the bot management REST API used by the web
// dashboard. The caller is identified by the X-User-Id header; requests
// without it act as the anonymous tenant.
package botapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pr-poehali-dev/telegram-feedback-bot/constructor"
	"github.com/pr-poehali-dev/telegram-feedback-bot/core/logger"
	"github.com/pr-poehali-dev/telegram-feedback-bot/core/telegram"
	"github.com/pr-poehali-dev/telegram-feedback-bot/storage"
)

const anonymousOwner = "anonymous"

// BotStore is the persistence surface the API needs.
type BotStore interface {
	Upsert(ctx context.Context, ownerID, token, username string) (int64, error)
	ByID(ctx context.Context, id int64, ownerID string) (storage.Bot, bool, error)
	ByOwner(ctx context.Context, ownerID string) ([]storage.Bot, error)
	SetWelcomeText(ctx context.Context, id int64, ownerID, text string) error
	Deactivate(ctx context.Context, id int64, ownerID string) error
}

// Verifier checks candidate tokens against the Bot API.
type Verifier interface {
	GetMe(ctx context.Context, token string) (telegram.BotIdentity, error)
}

// Registrar points newly connected bots at the webhook endpoint.
type Registrar interface {
	SetWebhook(ctx context.Context, token, url string) error
}

// Handler implements the /api/bots resource.
type Handler struct {
	bots       BotStore
	verifier   Verifier
	registrar  Registrar
	webhookURL func(token string) string
}

func NewHandler(bots BotStore, verifier Verifier, registrar Registrar, webhookURL func(string) string) *Handler {
	return &Handler{bots: bots, verifier: verifier, registrar: registrar, webhookURL: webhookURL}
}

// Routes mounts the resource handlers on a chi router.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Put("/", h.update)
	r.Delete("/", h.remove)
}

func ownerFrom(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get("X-User-Id")); id != "" {
		return id
	}
	return anonymousOwner
}

type botDTO struct {
	ID          int64     `json:"id"`
	OwnerID     string    `json:"owner_id,omitempty"`
	BotUsername string    `json:"bot_username"`
	WelcomeText string    `json:"welcome_text"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

func toDTO(b storage.Bot, withOwner bool) botDTO {
	dto := botDTO{
		ID:          b.ID,
		BotUsername: b.BotUsername,
		WelcomeText: b.WelcomeText.String,
		IsActive:    b.IsActive,
		CreatedAt:   b.CreatedAt,
	}
	if withOwner {
		dto.OwnerID = b.OwnerID
	}
	return dto
}

type createRequest struct {
	BotToken    string `json:"bot_token"`
	WelcomeText string `json:"welcome_text"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r)

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	token := strings.TrimSpace(req.BotToken)
	if token == "" {
		writeError(w, http.StatusBadRequest, "bot_token is required")
		return
	}

	identity, err := h.verifier.GetMe(r.Context(), token)
	if err != nil {
		var apiErr *telegram.APIError
		if errors.As(err, &apiErr) {
			writeError(w, http.StatusBadRequest, "Invalid bot token")
			return
		}
		h.internalError(w, r, "verify token", err)
		return
	}

	id, err := h.bots.Upsert(r.Context(), owner, token, identity.Username)
	if err != nil {
		h.internalError(w, r, "upsert bot", err)
		return
	}

	bot, found, err := h.bots.ByID(r.Context(), id, owner)
	if err != nil || !found {
		h.internalError(w, r, "reload bot", err)
		return
	}

	// A reconnect keeps the owner's greeting; the default applies only to
	// fresh rows and explicit requests.
	welcome := strings.TrimSpace(req.WelcomeText)
	if welcome == "" && (!bot.WelcomeText.Valid || bot.WelcomeText.String == "") {
		welcome = constructor.DefaultWelcome
	}
	if welcome != "" {
		if err := h.bots.SetWelcomeText(r.Context(), id, owner, welcome); err != nil {
			h.internalError(w, r, "set welcome text", err)
			return
		}
		bot.WelcomeText = sql.NullString{String: welcome, Valid: true}
	}

	if err := h.registrar.SetWebhook(r.Context(), token, h.webhookURL(token)); err != nil {
		h.internalError(w, r, "register webhook", err)
		return
	}

	logger.Info(r.Context(), "api", "bot connected",
		slog.Int64("bot_id", id), slog.String("username", identity.Username))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "bot": toDTO(bot, true)})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	bots, err := h.bots.ByOwner(r.Context(), ownerFrom(r))
	if err != nil {
		h.internalError(w, r, "list bots", err)
		return
	}
	dtos := make([]botDTO, 0, len(bots))
	for _, b := range bots {
		dtos = append(dtos, toDTO(b, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bots": dtos})
}

type updateRequest struct {
	BotID       int64  `json:"bot_id"`
	WelcomeText string `json:"welcome_text"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.BotID == 0 || req.WelcomeText == "" {
		writeError(w, http.StatusBadRequest, "bot_id and welcome_text are required")
		return
	}

	err := h.bots.SetWelcomeText(r.Context(), req.BotID, ownerFrom(r), req.WelcomeText)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Bot not found")
		return
	}
	if err != nil {
		h.internalError(w, r, "set welcome text", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("bot_id")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "bot_id is required")
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bot_id must be an integer")
		return
	}

	err = h.bots.Deactivate(r.Context(), id, ownerFrom(r))
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Bot not found")
		return
	}
	if err != nil {
		h.internalError(w, r, "deactivate bot", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, event string, err error) {
	logger.Error(r.Context(), "api", event, slog.Any("err", err))
	writeError(w, http.StatusInternalServerError, "Internal server error")
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
