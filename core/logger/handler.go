package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
	redacted         = "<redacted>"
)

type handlerConfig struct {
	level  slog.Leveler
	writer *asyncWriter
	// errWriter additionally receives ERROR records when set.
	errWriter *asyncWriter
	format    logFormat
	keyOrder  []string
}

type field struct {
	key string
	val any
}

// structuredHandler writes one flat line per record. Group names become
// dotted key prefixes.
type structuredHandler struct {
	cfg    handlerConfig
	pre    []field
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg}
}

// Enabled reports whether the handler allows processing the provided level.
func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

// Handle formats the record and hands the line to the writers.
func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}

	rec := newRecord(r.Time, r.Level, h.cfg.format == formatJSON)
	for _, f := range h.pre {
		rec.fields[f.key] = f.val
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(h.prefix, a, rec.set)
		return true
	})
	rec.fromContext(ctx)
	rec.finish(r.Message)

	line, err := rec.encode(h.cfg.format, h.cfg.keyOrder)
	if err != nil {
		return err
	}
	if h.cfg.errWriter != nil && r.Level >= slog.LevelError {
		if err := h.cfg.errWriter.Write(line); err != nil {
			return err
		}
	}
	return h.cfg.writer.Write(line)
}

// WithAttrs returns a copy that writes attrs on every record.
func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.pre = append([]field(nil), h.pre...)
	for _, a := range attrs {
		collect(h.prefix, a, func(k string, v any) {
			clone.pre = append(clone.pre, field{key: k, val: v})
		})
	}
	return &clone
}

// WithGroup returns a copy that prefixes later keys with name.
func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

// collect flattens a into normalized key/value pairs.
func collect(prefix string, a slog.Attr, set func(string, any)) {
	a.Value = a.Value.Resolve()
	key := prefix
	if a.Key != "" {
		key = joinKey(prefix, a.Key)
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, child := range a.Value.Group() {
			collect(key, child, set)
		}
		return
	}
	if key == "" {
		return
	}
	if k, v, ok := normalizeAttr(key, a.Value); ok {
		set(k, v)
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func normalizeAttr(key string, val slog.Value) (string, any, bool) {
	if isSecretKey(key) {
		return key, redacted, true
	}
	switch val.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(val.String()), true
	case slog.KindBool:
		return key, val.Bool(), true
	case slog.KindInt64:
		return key, val.Int64(), true
	case slog.KindUint64:
		if u := val.Uint64(); u <= math.MaxInt64 {
			return key, int64(u), true
		}
		return key, val.Uint64(), true
	case slog.KindFloat64:
		return key, val.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(val.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, val.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := val.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

// durationKey maps duration attributes onto millisecond keys: duration -> duration_ms, wait -> wait_ms.
func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_duration"):
		return key + "_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	}
	return key + "_ms"
}

// RoundMS rounds duration to the nearest millisecond for consistent logging.
func RoundMS(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d.Round(time.Millisecond)
}

type record struct {
	fields map[string]any
	json   bool
}

func newRecord(ts time.Time, level slog.Level, asJSON bool) *record {
	ts = ts.UTC()
	rec := &record{fields: make(map[string]any, 16), json: asJSON}
	rec.fields["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	rec.fields["level"] = level.String()
	if asJSON {
		rec.fields["ts_unix_nano"] = ts.UnixNano()
	}
	return rec
}

func (r *record) set(key string, val any) {
	r.fields[key] = val
}

func (r *record) setDefault(key string, val any, present bool) {
	if !present {
		return
	}
	if _, ok := r.fields[key]; !ok {
		r.fields[key] = val
	}
}

func (r *record) str(key string) string {
	s, _ := r.fields[key].(string)
	return s
}

func (r *record) fromContext(ctx context.Context) {
	s := scopeFrom(ctx)
	r.setDefault("rid", s.rid, s.rid != "")
	r.setDefault("user_id", s.userID, s.userID != 0)
	r.setDefault("update_id", s.updateID, s.updateID != 0)
	r.setDefault("chat_id", s.chatID, s.chatID != 0)
	r.setDefault("handler", s.handler, s.handler != "")
}

// finish compacts the rid, fills event and component, normalizes the
// status/outcome enumerations and drops empty values.
func (r *record) finish(msg string) {
	if rid := r.str("rid"); rid != "" {
		if compact := CompactRID(rid); compact != rid {
			if r.json {
				r.setDefault("rid_full", rid, true)
			}
			r.fields["rid"] = compact
		}
	}
	if r.str("event") == "" {
		if msg == "" {
			msg = "unknown"
		}
		r.fields["event"] = msg
	}
	if r.str("component") == "" {
		r.fields["component"] = CompApp
	}
	if s := r.str("status"); s != "" {
		if v, ok := canonical(statuses, s); ok {
			r.fields["status"] = v
		}
	}
	if o := r.str("outcome"); o != "" {
		if v, ok := canonical(outcomes, o); ok {
			r.fields["outcome"] = v
		} else {
			delete(r.fields, "outcome")
		}
	}
	for k, v := range r.fields {
		if v == nil || v == "" {
			delete(r.fields, k)
		}
	}
}

// keys returns the configured order first, then the rest alphabetically.
func (r *record) keys(order []string) []string {
	keys := make([]string, 0, len(r.fields))
	seen := make(map[string]bool, len(order))
	for _, k := range order {
		if _, ok := r.fields[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	head := len(keys)
	for k := range r.fields {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys[head:])
	return keys
}

func (r *record) encode(format logFormat, order []string) ([]byte, error) {
	var b bytes.Buffer
	keys := r.keys(order)
	if format == formatJSON {
		b.WriteByte('{')
		for i, k := range keys {
			val, err := json.Marshal(r.fields[k])
			if err != nil {
				return nil, err
			}
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(k))
			b.WriteByte(':')
			b.Write(val)
		}
		b.WriteByte('}')
	} else {
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(kvValue(r.fields[k]))
		}
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func kvValue(v any) string {
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	if strings.IndexFunc(s, needsQuote) >= 0 {
		return strconv.Quote(s)
	}
	return s
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}
