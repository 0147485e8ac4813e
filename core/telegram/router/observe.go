package router

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/vpnbot/core/logger"
	"github.com/m3rciful/vpnbot/core/metrics"
	tghelpers "github.com/m3rciful/vpnbot/core/telegram/helpers"
	"github.com/m3rciful/vpnbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// observe runs fn under the handler name and writes one summary line with
// its status, latency and reply counters.
func observe(c tele.Context, name string, fn tele.HandlerFunc, extras ...slog.Attr) error {
	start := time.Now()
	ctx := tghelpers.WithHandler(c, name)
	var err error
	if fn != nil {
		err = fn(c)
	}

	status := "ok"
	switch {
	case err != nil:
		status = "fail"
	case fn == nil:
		status = "skip"
	}
	elapsed := time.Since(start)
	metrics.HandlerDuration.WithLabelValues(name, status).Observe(elapsed.Seconds())

	stats := middleware.Stats(c)
	attrs := append([]slog.Attr{
		slog.String("status", status),
		slog.Int("messages", stats.Messages),
		slog.Bool("kb", stats.Keyboard),
		slog.Duration("duration", elapsed),
	}, extras...)
	if err != nil {
		attrs = append(attrs, logger.Err(err), slog.String("err_code", errorCode(err)))
	}
	logger.LogEvent(ctx, logger.Component(logger.CompTG), slog.LevelInfo, "handler.handled", attrs...)
	return err
}

// handlerName maps a command or callback key onto a metric-safe label.
func handlerName(kind, key string) string {
	key = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(key), "/"))
	if key == "" {
		key = "unknown"
	}
	return kind + "." + strings.ReplaceAll(key, " ", "_")
}

// errorCode prefers an explicit Code() and falls back to the error type name.
func errorCode(err error) string {
	if c, ok := err.(interface{ Code() string }); ok {
		if code := strings.TrimSpace(c.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	name := fmt.Sprintf("%T", err)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToUpper(name)
}

func recovered(h tele.HandlerFunc) tele.HandlerFunc {
	return middleware.RecoverMiddleware(h)
}
