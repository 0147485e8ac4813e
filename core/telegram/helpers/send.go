package helpers

import (
	"log/slog"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/m3rciful/vpnbot/core/logger"
	"github.com/m3rciful/vpnbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher installs the queue used for replies sent from middleware
// (rate-limit and access notices). nil sends inline.
func SetDispatcher(d *sender.Dispatcher) {
	dispatcher.Store(d)
}

// SendText queues a plain reply to the chat of the update. When the queue
// is saturated or closed the reply is sent inline.
func SendText(c tele.Context, text string) error {
	run := func() error { return c.Send(text) }
	d := dispatcher.Load()
	if d == nil {
		return run()
	}
	ctx := BuildContext(c)
	err := d.Enqueue(ctx, "send.text", "sendMessage", run)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, logger.CompSender, "queue.fallback", slog.String("action", "send.text"), logger.Err(err))
		return run()
	}
	return err
}
