// Package bootstrap brings up the logger and the optional database before
// the bot starts serving updates.
package bootstrap

import (
	"context"
	"io/fs"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/vpnbot/core/config"
	coredatabase "github.com/m3rciful/vpnbot/core/database"
	"github.com/m3rciful/vpnbot/core/logger"
)

// Options control the bootstrap pipeline. The function fields default to
// the logger and database packages and exist for tests.
type Options struct {
	Config *coreconfig.Config
	// Database is optional; nil or a config without host skips the database steps.
	Database *coredatabase.Config

	Migrations    fs.FS
	MigrationsDir string

	Modules Modules

	LoggerInit func(*coreconfig.Config) error
	Connect    func(context.Context, coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(context.Context, coredatabase.Config, fs.FS, string) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	// DB is nil when no database was configured.
	DB *sqlx.DB
}

func (o *Options) defaults() {
	if o.LoggerInit == nil {
		o.LoggerInit = logger.InitLogger
	}
	if o.Connect == nil {
		o.Connect = coredatabase.Connect
	}
	if o.Migrate == nil {
		o.Migrate = coredatabase.RunMigrations
	}
}

// Run initializes the logger, then connects to the database, applies the
// migrations and runs the seeders. Without a database only the logger is set up.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: nil config provided")
	}
	opts.defaults()
	if err := opts.LoggerInit(opts.Config); err != nil {
		return nil, errors.Wrap(err, "bootstrap: logger init")
	}
	if opts.Database == nil || !opts.Database.Enabled() {
		logger.Info(ctx, logger.CompApp, "bootstrap.storage", slog.String("status", "skip"))
		return &Result{}, nil
	}

	db, err := opts.Connect(ctx, *opts.Database)
	if err != nil {
		return nil, errors.Wrap(err, "bootstrap: database")
	}
	if err := prepare(ctx, db, opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Result{DB: db}, nil
}

func prepare(ctx context.Context, db *sqlx.DB, opts Options) error {
	if opts.Migrations != nil {
		if err := opts.Migrate(ctx, *opts.Database, opts.Migrations, opts.MigrationsDir); err != nil {
			return errors.Wrap(err, "bootstrap: migrations")
		}
	}
	for i, seeder := range opts.Modules.Seeders {
		if seeder == nil {
			continue
		}
		if err := seeder.Seed(ctx, db); err != nil {
			return errors.Wrapf(err, "bootstrap: seeder %d", i)
		}
	}
	return nil
}
