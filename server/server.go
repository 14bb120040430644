// Package server assembles the HTTP surface: the shared webhook endpoint,
// the bot management API, and a health probe.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/pr-poehali-dev/telegram-feedback-bot/botapi"
	"github.com/pr-poehali-dev/telegram-feedback-bot/core/logger"
	"github.com/pr-poehali-dev/telegram-feedback-bot/webhook"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
)

// NewRouter wires middleware and routes.
func NewRouter(wh *webhook.Handler, api *botapi.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(Recover, CORS, RequestLog)

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"error":"Method not allowed"}`))
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Post("/webhook", wh.ServeHTTP)
	r.Route("/api/bots", api.Routes)

	return r
}

// Server is the HTTP listener with lifecycle control.
type Server struct {
	srv *http.Server
}

func New(listen string, port int, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", listen, port),
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
			ReadTimeout:       readTimeout,
			WriteTimeout:      writeTimeout,
			IdleTimeout:       idleTimeout,
		},
	}
}

// Start blocks serving requests until the listener is closed.
func (s *Server) Start() error {
	logger.App.LogAttrs(context.Background(), slog.LevelInfo, "http listening",
		slog.String("listen", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
