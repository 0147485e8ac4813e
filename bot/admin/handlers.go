package admin

import (
	"log/slog"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/render"

	"github.com/m3rciful/vpnbot/bot/notify"
	"github.com/m3rciful/vpnbot/bot/settings"
	"github.com/m3rciful/vpnbot/core/logger"
)

const msgUnprocessable = "Невозможно обработать запрос"

type handlers struct {
	deps Deps
}

type notifyRequest struct {
	Users []notify.Notification `json:"users"`
}

type delivered struct {
	Delivered int `json:"delivered"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ok(w, r, map[string]any{"status": "ok"})
}

func (h *handlers) notify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		fail(w, r, http.StatusBadRequest, msgUnprocessable, nil)
		return
	}
	n, err := h.deps.Notifier.Deliver(r.Context(), req.Users)
	switch {
	case err == nil:
		ok(w, r, delivered{Delivered: n})
	case errors.Is(err, notify.ErrInvalid):
		fail(w, r, http.StatusBadRequest, msgUnprocessable+": "+validationMessage(err), delivered{Delivered: n})
	default:
		fail(w, r, http.StatusBadGateway, msgUnprocessable, delivered{Delivered: n})
	}
}

func (h *handlers) getConfig(w http.ResponseWriter, r *http.Request) {
	ok(w, r, h.deps.Settings.Current())
}

func (h *handlers) updateConfig(w http.ResponseWriter, r *http.Request) {
	var patch settings.Patch
	if err := render.DecodeJSON(r.Body, &patch); err != nil {
		fail(w, r, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	v, err := h.deps.Settings.Update(r.Context(), patch)
	switch {
	case err == nil:
		ok(w, r, v)
	case errors.Is(err, settings.ErrInvalid):
		fail(w, r, http.StatusUnprocessableEntity, validationMessage(err), nil)
	default:
		logger.Error(r.Context(), logger.CompAdmin, "settings.update_failed", slog.String("status", "fail"), logger.Err(err))
		fail(w, r, http.StatusInternalServerError, "could not save settings", nil)
	}
}

func (h *handlers) readLogs(w http.ResponseWriter, r *http.Request) {
	data, err := h.deps.Logs.Read()
	if errors.Is(err, logger.ErrNoLogFile) {
		fail(w, r, http.StatusNotFound, err.Error(), nil)
		return
	}
	if err != nil {
		logger.Error(r.Context(), logger.CompAdmin, "logs.read_failed", slog.String("status", "fail"), logger.Err(err))
		fail(w, r, http.StatusInternalServerError, "Невозможно отправить данные", nil)
		return
	}
	render.PlainText(w, r, string(data))
}

func (h *handlers) truncateLogs(w http.ResponseWriter, r *http.Request) {
	err := h.deps.Logs.Truncate()
	if errors.Is(err, logger.ErrNoLogFile) {
		fail(w, r, http.StatusNotFound, err.Error(), nil)
		return
	}
	if err != nil {
		logger.Error(r.Context(), logger.CompAdmin, "logs.truncate_failed", slog.String("status", "fail"), logger.Err(err))
		fail(w, r, http.StatusInternalServerError, "Невозможно почистить файл логов", nil)
		return
	}
	ok(w, r, nil)
}

// stop answers first; the process then shuts down through the runtime.
func (h *handlers) stop(w http.ResponseWriter, r *http.Request) {
	logger.Warn(r.Context(), logger.CompAdmin, "stop.requested", slog.String("status", "ok"))
	ok(w, r, nil)
	if h.deps.Stop != nil {
		go h.deps.Stop()
	}
}
