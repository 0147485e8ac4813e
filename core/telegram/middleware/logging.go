package middleware

import (
	"log/slog"

	"github.com/m3rciful/vpnbot/core/logger"
	"github.com/m3rciful/vpnbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/vpnbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// LoggerMiddleware builds the request context of the update and logs a
// sampled debug receipt line for it.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		if logger.ShouldSampleDebug() {
			logger.LogEvent(ctx, logger.Component(logger.CompTG), slog.LevelDebug, "update.received", receipt(c)...)
		}
		return next(c)
	}
}

func receipt(c tele.Context) []slog.Attr {
	attrs := []slog.Attr{slog.String("kind", UpdateKind(c.Update()))}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if u := c.Sender(); u != nil {
		attrs = append(attrs,
			slog.String("username", logger.SanitizeLimit(u.Username, 64)),
			slog.String("lang", u.LanguageCode),
		)
	}
	if cb := c.Callback(); cb != nil {
		key, payload := callbacks.ParseCallbackData(cb)
		return append(attrs,
			slog.String("cb_key", logger.SanitizeLimit(key, 128)),
			slog.String("payload", logger.SanitizeLimit(payload, 256)),
		)
	}
	return append(attrs, slog.String("payload", logger.SanitizeLimit(c.Text(), 256)))
}
