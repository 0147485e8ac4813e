package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/m3rciful/vpnbot/bot/admin"
	"github.com/m3rciful/vpnbot/bot/dispatch"
	"github.com/m3rciful/vpnbot/bot/menu"
	"github.com/m3rciful/vpnbot/bot/transport"
	"github.com/m3rciful/vpnbot/core/logger"
	"github.com/m3rciful/vpnbot/core/metrics"
	coretelegram "github.com/m3rciful/vpnbot/core/telegram"
	"github.com/m3rciful/vpnbot/core/telegram/callbacks"
	"github.com/m3rciful/vpnbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/vpnbot/core/telegram/helpers"
	"github.com/m3rciful/vpnbot/core/telegram/router"
	"github.com/m3rciful/vpnbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const (
	textRateLimited = "Слишком много запросов, подождите немного ⏳"
	textAdminOnly   = "Команда доступна только администратору"
)

// TelegramRunOptions registers commands, callbacks and the text fallback,
// and binds the transport and the admin server to the runtime lifecycle.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	if err := a.register(reg); err != nil {
		return coretelegram.RunOptions{}, err
	}

	core := &a.cfg.Config
	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: core.Telegram.AdminID,
		OnAdminReject: func(c tele.Context) error {
			return tghelpers.SendText(c, textAdminOnly)
		},
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(reg, router.TextOptions{})...)

	return coretelegram.RunOptions{
		Config:   core,
		Registry: reg,
		DispatcherOptions: sender.Options{
			MaxRetries: 2,
		},
		Middlewares: coretelegram.DefaultMiddlewares(core, func(c tele.Context) error {
			return tghelpers.SendText(c, textRateLimited)
		}),
		Routes:  routes,
		OnStart: a.onStart,
		OnStop:  a.onStop,
	}, nil
}

func (a *App) register(reg *coretelegram.Registry) error {
	reg.RegisterCommand("/start", commands.Command{
		Description: "Главное меню",
		Handler: handle(func(ctx context.Context, from dispatch.Sender, c tele.Context) error {
			return a.dispatch.Start(ctx, from, referralOf(c))
		}),
	})
	reg.RegisterCommand("/menu", commands.Command{
		Description: "Вернуться на главную",
		Handler: handle(func(ctx context.Context, from dispatch.Sender, _ tele.Context) error {
			return a.dispatch.Button(ctx, from, menu.IntentMainMenu, "")
		}),
	})
	reg.RegisterCommand("/pending", commands.Command{
		Description: "Заявки, ожидающие решения",
		AdminOnly:   true,
		Handler: handle(func(ctx context.Context, from dispatch.Sender, _ tele.Context) error {
			return a.dispatch.PendingOffers(ctx, from)
		}),
	})

	for _, intent := range menu.Intents {
		err := reg.RegisterCallback(intent, handle(func(ctx context.Context, from dispatch.Sender, c tele.Context) error {
			return a.dispatch.Button(ctx, from, intent, callbacks.CallbackPayload(c))
		}))
		if err != nil {
			return errors.Wrapf(err, "register %s", intent)
		}
	}

	reg.SetTextFallback(handle(func(ctx context.Context, from dispatch.Sender, c tele.Context) error {
		return a.dispatch.Text(ctx, from, c.Text())
	}))
	return nil
}

// handle resolves the request context and the sender. Updates without a
// user (channel posts) are ignored.
func handle(fn func(ctx context.Context, from dispatch.Sender, c tele.Context) error) tele.HandlerFunc {
	return func(c tele.Context) error {
		from := senderOf(c)
		if from.ID == 0 {
			return nil
		}
		return fn(tghelpers.BuildContext(c), from, c)
	}
}

func (a *App) onStart(ctx context.Context, rt coretelegram.Runtime) error {
	tr := transport.New(rt.Bot, rt.Dispatcher)
	a.dispatch.SetTransport(tr)
	a.notify.SetTransport(tr)

	cfg := a.cfg.Admin
	a.admin = admin.NewServer(admin.Config{
		Listen:    cfg.Listen,
		Token:     cfg.Token,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	}, admin.Deps{
		Notifier: a.notify,
		Settings: a.settings,
		Logs:     logger.BotLogFile(cfg.LogTailBytes),
		Metrics:  metrics.Handler(),
		Stop:     rt.Stop,
	})
	a.admin.Start()

	logger.LogEvent(ctx, logger.TWire, slog.LevelInfo, "runtime.bound",
		slog.String("status", "ok"),
		slog.String("username", rt.Bot.Me.Username),
		slog.Int("count", len(rt.Registry.ListCallbacks())),
	)
	return nil
}

func (a *App) onStop(ctx context.Context, _ coretelegram.Runtime) error {
	var err error
	if a.admin != nil {
		err = errors.Wrap(a.admin.Shutdown(ctx), "admin shutdown")
	}
	a.closeDB()
	return err
}

func senderOf(c tele.Context) dispatch.Sender {
	u := c.Sender()
	if u == nil {
		return dispatch.Sender{}
	}
	return dispatch.Sender{ID: u.ID, Username: u.Username, FirstName: u.FirstName}
}

// referralOf returns the deep-link payload of /start, e.g. "/start abc123".
func referralOf(c tele.Context) string {
	msg := c.Message()
	if msg == nil {
		return ""
	}
	if msg.Payload != "" {
		return strings.TrimSpace(msg.Payload)
	}
	fields := strings.Fields(msg.Text)
	if len(fields) > 1 && strings.HasPrefix(fields[0], "/start") {
		return fields[1]
	}
	return ""
}
