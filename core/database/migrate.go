package database

import (
	"context"
	"io/fs"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/m3rciful/vpnbot/core/logger"
)

const readyTimeout = 30 * time.Second

// migrationFile is one *.up.sql script and the version prefix of its name.
type migrationFile struct {
	name    string
	version uint64
}

// RunMigrations waits for the database and applies every pending up script
// found in dir of migrations, normally an embed.FS.
func RunMigrations(ctx context.Context, cfg Config, migrations fs.FS, dir string) error {
	if migrations == nil {
		return errors.New("migrations filesystem is nil")
	}
	if dir == "" {
		dir = "."
	}
	if err := WaitForPostgres(ctx, cfg.DSN(), readyTimeout); err != nil {
		logger.LogEvent(ctx, logger.MIG, slog.LevelError, "db.not_ready", logger.Err(err))
		return errors.Wrap(err, "database not ready")
	}

	files := scanMigrations(migrations, dir)
	logger.LogEvent(ctx, logger.MIG, slog.LevelDebug, "resolve",
		slog.String("path", dir),
		slog.Int("files_total", len(files)),
		slog.String("latest", latest(files)),
	)

	src, err := iofs.New(migrations, dir)
	if err != nil {
		return errors.Wrap(err, "open migrations source")
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, cfg.URL())
	if err != nil {
		logger.LogEvent(ctx, logger.MIG, slog.LevelError, "init", logger.Err(err))
		return errors.Wrap(err, "initialize migrations")
	}
	defer m.Close()

	from, _, _ := m.Version()
	start := time.Now()
	err = m.Up()
	elapsed := time.Since(start)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.LogEvent(ctx, logger.MIG, slog.LevelError, "apply",
			logger.Err(err),
			slog.Uint64("from_ver", uint64(from)),
			slog.Duration("duration", elapsed),
		)
		return errors.Wrap(err, "apply migrations")
	}

	to := from
	if err == nil {
		to, _, _ = m.Version()
	}
	applied := between(files, uint64(from), uint64(to))
	for _, f := range applied {
		logger.LogEvent(ctx, logger.MIG, slog.LevelDebug, "applied", slog.String("file", f.name))
	}
	logger.LogEvent(ctx, logger.MIG, slog.LevelInfo, "summary",
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", len(applied)),
		slog.Duration("duration", elapsed),
	)
	return nil
}

// scanMigrations lists the up scripts of dir ordered by version.
func scanMigrations(fsys fs.FS, dir string) []migrationFile {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil
	}
	var files []migrationFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, _, _ := strings.Cut(name, "_")
		v, _ := strconv.ParseUint(prefix, 10, 64)
		files = append(files, migrationFile{name: name, version: v})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].version != files[j].version {
			return files[i].version < files[j].version
		}
		return files[i].name < files[j].name
	})
	return files
}

// between returns the files with from < version <= to.
func between(files []migrationFile, from, to uint64) []migrationFile {
	var out []migrationFile
	for _, f := range files {
		if f.version > from && f.version <= to {
			out = append(out, f)
		}
	}
	return out
}

func latest(files []migrationFile) string {
	if len(files) == 0 {
		return ""
	}
	return files[len(files)-1].name
}
