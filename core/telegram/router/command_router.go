package router

import (
	"context"
	"log/slog"

	"github.com/m3rciful/vpnbot/core/logger"
	tg "github.com/m3rciful/vpnbot/core/telegram"
	"github.com/m3rciful/vpnbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes returns one route per registered command. Admin-only
// commands are guarded by the admin check.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}
	guard := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})

	cmds := reg.Commands()
	routes := make([]tg.Route, 0, len(cmds))
	for _, cmd := range cmds {
		name := handlerName("command", cmd.Name)
		run := cmd.Handler
		h := tele.HandlerFunc(func(c tele.Context) error { return observe(c, name, run) })
		if cmd.AdminOnly {
			h = guard(h)
		}
		routes = append(routes, tg.Route{Endpoint: cmd.Name, Handler: recovered(h)})
	}

	logger.LogEvent(context.Background(), logger.TWire, slog.LevelInfo, "tg.wire",
		slog.String("status", "ok"),
		slog.Int("commands", len(cmds)),
		slog.Int("callbacks", len(reg.ListCallbacks())),
	)
	return routes
}
