package middleware

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/m3rciful/vpnbot/core/logger"
	tghelpers "github.com/m3rciful/vpnbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// idleLimiters bounds how many per-user limiters are kept before idle ones
// are dropped.
const idleLimiters = 4096

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	// Interval is the minimum gap between two updates of one user.
	Interval time.Duration
	// Exclude lists update kinds (see UpdateKind) that are never limited.
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
}

type userLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

type userLimiters struct {
	mu    sync.Mutex
	every time.Duration
	users map[int64]*userLimiter
}

func (l *userLimiters) allow(userID int64, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	ul, ok := l.users[userID]
	if !ok {
		if len(l.users) >= idleLimiters {
			l.prune(now)
		}
		ul = &userLimiter{lim: rate.NewLimiter(rate.Every(l.every), 1)}
		l.users[userID] = ul
	}
	ul.seen = now
	return ul.lim.AllowN(now, 1)
}

func (l *userLimiters) prune(now time.Time) {
	for id, ul := range l.users {
		if now.Sub(ul.seen) > l.every {
			delete(l.users, id)
		}
	}
}

// RateLimitMiddleware drops updates that arrive from the same user faster
// than opts.Interval. OnLimited may answer the dropped update.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	limiters := &userLimiters{every: opts.Interval, users: make(map[int64]*userLimiter)}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil || opts.Interval <= 0 {
				return next(c)
			}
			kind := UpdateKind(c.Update())
			if _, skip := opts.Exclude[kind]; skip {
				return next(c)
			}
			if limiters.allow(user.ID, time.Now()) {
				return next(c)
			}
			logger.LogEvent(tghelpers.BuildContext(c), logger.TG, slog.LevelWarn, "tg.rate_limit",
				slog.String("kind", kind))
			if opts.OnLimited != nil {
				_ = opts.OnLimited(c)
			}
			return nil
		}
	}
}
