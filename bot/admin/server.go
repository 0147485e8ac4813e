// Package admin exposes the administrative HTTP surface: notification
// fan-out, runtime settings, log access, metrics and process stop.
package admin

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/m3rciful/vpnbot/bot/notify"
	"github.com/m3rciful/vpnbot/bot/settings"
	"github.com/m3rciful/vpnbot/core/logger"
)

// Notifier delivers a batch of notifications.
type Notifier interface {
	Deliver(ctx context.Context, batch []notify.Notification) (int, error)
}

// Settings reads and updates runtime settings.
type Settings interface {
	Current() settings.Values
	Update(ctx context.Context, p settings.Patch) (settings.Values, error)
}

// LogFile gives access to the bot log.
type LogFile interface {
	Read() ([]byte, error)
	Truncate() error
}

// Config configures the listener and request policy.
type Config struct {
	Listen    string
	Token     string
	RateLimit float64
	RateBurst int
}

// Deps are the handlers' collaborators. Stop is called after the /stop reply is written.
type Deps struct {
	Notifier Notifier
	Settings Settings
	Logs     LogFile
	Metrics  http.Handler
	Stop     func()
}

// NewRouter builds the chi router. /health and /metrics are public; every
// other route needs the bearer token when one is configured.
func NewRouter(cfg Config, deps Deps) http.Handler {
	h := &handlers{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLog)
	r.Use(rateLimit(cfg.RateLimit, cfg.RateBurst))

	r.Get("/health", h.health)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(cfg.Token))
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Post("/notify", h.notify)
		r.Get("/config", h.getConfig)
		r.Post("/config", h.updateConfig)
		r.Get("/logs", h.readLogs)
		r.Post("/logs", h.truncateLogs)
		r.Post("/stop", h.stop)
	})
	return r
}

// Server owns the HTTP listener.
type Server struct {
	srv *http.Server
}

// NewServer prepares a server on cfg.Listen.
func NewServer(cfg Config, deps Deps) *Server {
	return &Server{srv: &http.Server{
		Addr:              cfg.Listen,
		Handler:           NewRouter(cfg, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}}
}

// Start serves in the background. A listener failure after startup is logged.
func (s *Server) Start() {
	logger.LogEvent(context.Background(), logger.Admin, slog.LevelInfo, "listen",
		slog.String("status", "ok"), slog.String("listen", s.srv.Addr))
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.LogEvent(context.Background(), logger.Admin, slog.LevelError, "listen",
				slog.String("status", "fail"), slog.String("listen", s.srv.Addr), logger.Err(err))
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
