package middleware

import (
	"github.com/m3rciful/vpnbot/core/metrics"

	tele "gopkg.in/telebot.v4"
)

const statsKey = "send_stats"

// SendStats counts replies sent through the update context.
type SendStats struct {
	Messages int
	Keyboard bool
}

// countingContext records successful Send and Reply calls in SendStats.
type countingContext struct {
	tele.Context
	stats *SendStats
}

func (m countingContext) Send(what interface{}, opts ...interface{}) error {
	return m.count(m.Context.Send(what, opts...), opts)
}

func (m countingContext) Reply(what interface{}, opts ...interface{}) error {
	return m.count(m.Context.Reply(what, opts...), opts)
}

func (m countingContext) count(err error, opts []interface{}) error {
	if err != nil {
		return err
	}
	m.stats.Messages++
	m.stats.Keyboard = m.stats.Keyboard || hasKeyboard(opts)
	return nil
}

func hasKeyboard(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil && v.ReplyMarkup != nil {
				return true
			}
		case *tele.ReplyMarkup:
			if v != nil {
				return true
			}
		}
	}
	return false
}

// MessageMetricsMiddleware counts the update by kind and hands the handler a
// context that tracks its replies.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		metrics.Updates.WithLabelValues(UpdateKind(c.Update())).Inc()
		stats := &SendStats{}
		c.Set(statsKey, stats)
		return next(countingContext{Context: c, stats: stats})
	}
}

// Stats returns the reply counters of the update; zero when the metrics
// middleware did not run.
func Stats(c tele.Context) SendStats {
	if s, ok := c.Get(statsKey).(*SendStats); ok && s != nil {
		return *s
	}
	return SendStats{}
}

// UpdateKind classifies an update as message, callback, inline_query or other.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Callback != nil:
		return "callback"
	case upd.Message != nil:
		return "message"
	case upd.Query != nil:
		return "inline_query"
	}
	return "other"
}
