package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"runtime"
	"sync"

	"github.com/m3rciful/vpnbot/core/buildinfo"
	coreconfig "github.com/m3rciful/vpnbot/core/config"
)

var (
	initOnce sync.Once
	closeMu  sync.Mutex
	closed   bool

	logWriter  *asyncWriter
	errWriter  *asyncWriter
	logClosers []io.Closer
	botLogPath string

	levelVar      slog.LevelVar
	debugSampler  = newRatioSampler(1, 50)
	traceOverride bool

	// L is the base logger. It discards output until InitLogger runs.
	L = slog.New(slog.DiscardHandler)

	// Component loggers, rebound by InitLogger.
	DB      = L
	MIG     = L
	TG      = L
	TWire   = L
	Backend = L
	Admin   = L
)

// Component names used with the context-first helpers (Info, Warn, ...).
const (
	CompApp      = "app"
	CompTG       = "tg"
	CompSender   = "tg.sender"
	CompBackend  = "backend"
	CompOffer    = "offer"
	CompDispatch = "dispatch"
	CompNotify   = "notify"
	CompAdmin    = "admin"
	CompSettings = "settings"
)

// InitLogger installs the structured logger described by cfg as the slog
// default. Only the first call has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	initOnce.Do(func() {
		s := resolveSettings(cfg)
		levelVar.Set(s.level)
		debugSampler.Set(s.sampleNum, s.sampleDen)
		traceOverride = s.trace

		out := openSinks(s.dir, s.botFile, s.errorsFile)
		logClosers = out.closers
		botLogPath = out.botPath
		logWriter = newAsyncWriter(out.all, 4096)
		if len(out.errOnly) > 0 {
			errWriter = newAsyncWriter(out.errOnly, 512)
		}

		L = slog.New(newStructuredHandler(handlerConfig{
			level:     &levelVar,
			writer:    logWriter,
			errWriter: errWriter,
			format:    s.format,
			keyOrder:  s.keyOrder,
		}))
		slog.SetDefault(L)
		bindComponents()

		attrs := append([]slog.Attr{
			slog.String("component", CompApp),
			slog.String("event", "startup"),
			slog.String("go_version", runtime.Version()),
		}, buildinfo.Attrs()...)
		L.LogAttrs(context.Background(), slog.LevelInfo, "", append(attrs, slog.String("cfg_profile", s.profile))...)
	})
	return nil
}

func bindComponents() {
	DB = Component("db")
	MIG = Component("db.migrate")
	TG = Component(CompTG)
	TWire = Component("tg.wire")
	Backend = Component(CompBackend)
	Admin = Component(CompAdmin)
}

// Shutdown drains queued records and closes the log files. Later calls
// are no-ops.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	for _, w := range []*asyncWriter{logWriter, errWriter} {
		if w != nil {
			errs = append(errs, w.Close())
		}
	}
	for _, c := range logClosers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
