package logger

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	botTokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
	bearerRe   = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]+`)
)

// secretKeys are attribute keys whose values are never written.
var secretKeys = map[string]struct{}{
	"token":         {},
	"authorization": {},
	"password":      {},
	"dsn":           {},
}

// Sanitize drops control and format runes except tab and newline.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r), unicode.Is(unicode.Cf, r):
			return -1
		}
		return r
	}, s)
}

// SanitizeLimit sanitizes and redacts s and keeps at most max runes.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	s = Redact(Sanitize(s))
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// Redact masks Telegram bot tokens and bearer credentials, which end up in
// transport error texts (request URLs, echoed headers).
func Redact(s string) string {
	s = botTokenRe.ReplaceAllString(s, "bot<redacted>")
	return bearerRe.ReplaceAllString(s, "Bearer <redacted>")
}

func isSecretKey(key string) bool {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	_, ok := secretKeys[strings.ToLower(key)]
	return ok
}
