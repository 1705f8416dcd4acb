package http

import (
	"net/http"
	"time"

	"github.com/Wyydra/agentcall/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

type Options struct {
	// AllowedOrigins limits browser websocket upgrades. Empty allows any origin.
	AllowedOrigins  []string
	MaxMessageBytes int64
	PingInterval    time.Duration
	IdleTimeout     time.Duration
	SendQueue       int
	StaticDir       string
	Metrics         http.Handler
}

type Handler struct {
	Relay    *service.Relay
	opts     Options
	upgrader websocket.Upgrader
}

func NewHandler(relay *service.Relay, opts Options) *Handler {
	h := &Handler{Relay: relay, opts: opts}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if h.opts.Metrics != nil {
		r.Handle("/metrics", h.opts.Metrics)
	}
	r.Get("/ws", h.ServeWS)

	if h.opts.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(h.opts.StaticDir)))
	}
	return r
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	// Non-browser peers do not send an Origin header.
	if origin == "" {
		return true
	}
	for _, o := range h.opts.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
