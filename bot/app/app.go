// Package app wires the VPN bot: infrastructure bootstrap, domain services,
// the Telegram runtime and the administrative HTTP surface.
package app

import (
	"context"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/vpnbot/bot/admin"
	"github.com/m3rciful/vpnbot/bot/backend"
	"github.com/m3rciful/vpnbot/bot/botconfig"
	"github.com/m3rciful/vpnbot/bot/dispatch"
	"github.com/m3rciful/vpnbot/bot/notify"
	"github.com/m3rciful/vpnbot/bot/offer"
	"github.com/m3rciful/vpnbot/bot/qr"
	"github.com/m3rciful/vpnbot/bot/session"
	"github.com/m3rciful/vpnbot/bot/settings"
	"github.com/m3rciful/vpnbot/core/bootstrap"
	"github.com/m3rciful/vpnbot/core/clock"
	"github.com/m3rciful/vpnbot/core/logger"
	"github.com/m3rciful/vpnbot/migrations"
)

// App holds the long-lived services of one bot process.
type App struct {
	cfg *botconfig.Config
	db  *sqlx.DB

	settings *settings.Service
	backend  *backend.Client
	store    *session.Store
	workflow *offer.Workflow
	dispatch *dispatch.Service
	notify   *notify.Fanout

	admin *admin.Server
}

// Bootstrap initializes logging and the optional database, loads runtime
// settings and builds the domain services. The Telegram transport is bound
// later, once the runtime has created the bot.
func Bootstrap(ctx context.Context, cfg *botconfig.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	defaults := settings.Values{
		DefaultErrorMessage: cfg.Settings.Defaults.DefaultErrorMessage,
		AdminContacts:       cfg.Settings.Defaults.AdminContacts,
	}

	res, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:        &cfg.Config,
		Database:      &cfg.Database,
		Migrations:    migrations.FS,
		MigrationsDir: migrations.Dir,
		Modules: bootstrap.Modules{
			Seeders: []bootstrap.Seeder{settings.Seeder(defaults)},
		},
	})
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, db: res.DB}
	a.settings = settings.NewService(settingsStore(cfg, res.DB), defaults)
	if err := a.settings.Load(ctx); err != nil {
		a.closeDB()
		return nil, errors.Wrap(err, "app: load settings")
	}

	a.backend = backend.New(backend.Options{
		BaseURL:          cfg.Backend.BaseURL,
		Token:            cfg.Backend.Token,
		Timeout:          cfg.Backend.Timeout,
		TrialErrorPrefix: cfg.Backend.TrialErrorPrefix,
		PromoErrorPrefix: cfg.Backend.PromoErrorPrefix,
	})
	a.store = session.NewStore(clock.NewRealClock())
	a.workflow = offer.New(a.backend, a.store, offer.Config{
		TrialPlanID:       cfg.Offers.TrialPlanID,
		MaxPromoLength:    cfg.Offers.MaxPromoLength,
		NewOfferCooldown:  cfg.Cooldowns.NewOffer,
		OfferInfoCooldown: cfg.Cooldowns.OfferInfo,
	})
	a.dispatch = dispatch.New(dispatch.Deps{
		Backend:  a.backend,
		Store:    a.store,
		Workflow: a.workflow,
		QR:       qr.New(),
		Settings: a.settings,
	}, dispatch.Config{
		AdminID:             cfg.Telegram.AdminID,
		BotUsername:         cfg.BotUsername,
		NewOfferCooldown:    cfg.Cooldowns.NewOffer,
		UpdateQRCooldown:    cfg.Cooldowns.UpdateQR,
		OfferInfoCooldown:   cfg.Cooldowns.OfferInfo,
		Devices:             cfg.Devices,
		PaymentImage:        paymentImage(ctx, cfg.Payment.ImagePath),
		PaymentInstructions: cfg.Payment.Instructions,
	})
	a.notify = notify.New(nil, a.store, cfg.Telegram.AdminID, deviceNames(cfg.Devices))

	logger.Info(ctx, logger.CompApp, "bootstrap.done",
		slog.String("status", "ok"),
		slog.Bool("db", a.db != nil),
		slog.String("listen", cfg.Admin.Listen),
	)
	return a, nil
}

// settingsStore prefers the database, then a file, then memory.
func settingsStore(cfg *botconfig.Config, db *sqlx.DB) settings.Store {
	switch {
	case db != nil:
		return settings.NewPostgresStore(db)
	case cfg.Settings.File != "":
		return settings.FileStore{Path: cfg.Settings.File}
	default:
		return settings.NewMemoryStore()
	}
}

// paymentImage is optional: without it the payment step is text only.
func paymentImage(ctx context.Context, path string) []byte {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn(ctx, logger.CompApp, "payment_image.missing",
			slog.String("status", "skip"), slog.String("path", path), logger.Err(err))
		return nil
	}
	return data
}

func deviceNames(devices []botconfig.Device) []string {
	names := make([]string, 0, len(devices))
	for _, d := range devices {
		names = append(names, d.Name)
	}
	return names
}

func (a *App) closeDB() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		logger.LogEvent(context.Background(), logger.DB, slog.LevelWarn, "close",
			slog.String("status", "fail"), logger.Err(err))
	}
	a.db = nil
}
