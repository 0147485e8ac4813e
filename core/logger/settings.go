package logger

import (
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	coreconfig "github.com/m3rciful/vpnbot/core/config"
)

// settings is the resolved form of the logging section.
type settings struct {
	format    logFormat
	keyOrder  []string
	level     slog.Level
	profile   string
	sampleNum int
	sampleDen int
	trace     bool

	dir        string
	botFile    string
	errorsFile string
}

func resolveSettings(cfg *coreconfig.Config) settings {
	s := settings{
		format:    formatJSON,
		keyOrder:  append([]string(nil), defaultKeyOrder...),
		level:     slog.LevelInfo,
		profile:   "prod",
		sampleNum: 1,
		sampleDen: 50,
		trace:     envFlag("TRACE") || envFlag("LOG_TRACE"),
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}
	if order := splitList(lc.KeysOrder); len(order) > 0 && lc.KeysOrder != "default" {
		s.keyOrder = order
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(lc.Level))); err == nil {
		s.level = lvl
	} else if strings.EqualFold(strings.TrimSpace(lc.Level), "warning") {
		s.level = slog.LevelWarn
	}
	if strings.TrimSpace(lc.DebugSample) != "" {
		s.sampleNum, s.sampleDen = parseRatioSpec(lc.DebugSample)
	}
	s.dir = strings.TrimSpace(lc.Dir)
	s.botFile = strings.TrimSpace(lc.BotFile)
	s.errorsFile = strings.TrimSpace(lc.ErrorsFile)
	return s
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envFlag(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

type sinks struct {
	all     []io.Writer
	errOnly []io.Writer
	closers []io.Closer
	botPath string
}

// openSinks always writes to stdout and adds the bot and errors files under
// dir when configured. A file that cannot be opened is reported and skipped.
func openSinks(dir, botFile, errorsFile string) sinks {
	out := sinks{all: []io.Writer{os.Stdout}}
	if dir == "" {
		return out
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("logger: create log dir %s: %v", dir, err)
		return out
	}
	open := func(name string) *os.File {
		if name == "" {
			return nil
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Printf("logger: open log file %s: %v", path, err)
			return nil
		}
		out.closers = append(out.closers, f)
		return f
	}
	if f := open(botFile); f != nil {
		out.all = append(out.all, f)
		out.botPath = f.Name()
	}
	if f := open(errorsFile); f != nil {
		out.errOnly = append(out.errOnly, f)
	}
	return out
}
