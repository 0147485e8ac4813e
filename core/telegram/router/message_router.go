package router

import (
	"strings"

	tg "github.com/m3rciful/vpnbot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// TextOptions controls fallback behaviour for text/media updates.
type TextOptions struct {
	UnknownText  tele.HandlerFunc
	UnknownMedia tele.HandlerFunc
}

// TextRoutes builds handlers for plain text and unexpected media.
// Slash text that telebot did not match exactly (aliases, a trailing
// argument, a @botname suffix) is resolved through the registry; everything
// else goes to the text fallback.
func TextRoutes(reg *tg.Registry, opts TextOptions) []tg.Route {
	text := func(c tele.Context) error {
		msg := strings.TrimSpace(c.Text())
		if reg != nil && strings.HasPrefix(msg, "/") {
			if key, cmd, ok := reg.LookupCommand(msg); ok && !cmd.AdminOnly {
				return observe(c, handlerName("command", key), cmd.Handler)
			}
		}
		if reg != nil {
			if fb := reg.TextFallback(); fb != nil {
				return observe(c, "text", fb)
			}
		}
		return observe(c, "unknown_text", opts.UnknownText)
	}
	media := func(c tele.Context) error {
		return observe(c, "unexpected_media", opts.UnknownMedia)
	}

	routes := []tg.Route{{Endpoint: tele.OnText, Handler: recovered(text)}}
	for _, endpoint := range []string{tele.OnDocument, tele.OnPhoto, tele.OnSticker, tele.OnVoice} {
		routes = append(routes, tg.Route{Endpoint: endpoint, Handler: recovered(media)})
	}
	return routes
}
