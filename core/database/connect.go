package database

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/m3rciful/vpnbot/core/logger"
)

const (
	connectTimeout = 5 * time.Second
	defaultPool    = 4
	readyPoll      = 2 * time.Second
)

// Connect opens a pooled postgres handle and verifies it answers.
func Connect(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	target := slog.Group("db",
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("name", cfg.Name),
	)

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err == nil {
		err = db.PingContext(ctx)
		if err != nil {
			_ = db.Close()
		}
	}
	if err != nil {
		logger.LogEvent(ctx, logger.DB, slog.LevelError, "db.connect",
			target, logger.Err(err), slog.Duration("duration", time.Since(start)))
		return nil, errors.Wrap(err, "db connect")
	}

	pool := cfg.MaxConnections
	if pool <= 0 {
		pool = defaultPool
	}
	db.SetMaxOpenConns(pool)
	db.SetMaxIdleConns(pool)

	logger.LogEvent(ctx, logger.DB, slog.LevelInfo, "db.connect",
		target,
		slog.Int("pool_open", pool),
		slog.Duration("duration", time.Since(start)),
	)
	return db, nil
}

// WaitForPostgres polls dsn until it answers, timeout passes or ctx ends.
func WaitForPostgres(ctx context.Context, dsn string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tick := time.NewTicker(readyPoll)
	defer tick.Stop()
	for {
		err := ping(ctx, dsn)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(err, "waiting for database")
		case <-tick.C:
		}
	}
}

func ping(ctx context.Context, dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}
