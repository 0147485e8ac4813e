package router

import (
	"log/slog"

	tg "github.com/m3rciful/vpnbot/core/telegram"
	"github.com/m3rciful/vpnbot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	// NotFound is used when the registry has no fallback of its own.
	NotFound tele.HandlerFunc
}

// CallbackRoute answers every callback query and dispatches it by its
// unique key through the registry.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		key := callbacks.CallbackKey(c)
		h, ok := reg.GetCallback(key)
		if ok {
			_ = c.Respond()
			return observe(c, handlerName("callback", key), h, slog.String("cb_key", key))
		}
		fallback := reg.CallbackNotFound()
		if fallback == nil {
			fallback = opts.NotFound
		}
		return observe(c, handlerName("callback", key), fallback,
			slog.String("cb_key", key), slog.String("reason", "not_found"))
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: recovered(handler)}
}
