// Package notify delivers backend-originated messages to users.
package notify

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"github.com/m3rciful/vpnbot/bot/backend"
	"github.com/m3rciful/vpnbot/bot/dispatch"
	"github.com/m3rciful/vpnbot/bot/menu"
	"github.com/m3rciful/vpnbot/bot/session"
	"github.com/m3rciful/vpnbot/core/logger"
	"github.com/m3rciful/vpnbot/core/metrics"
	"github.com/m3rciful/vpnbot/core/telegram/format"
)

// Control actions.
const (
	ActionAcceptOffer = "accept offer"
	ActionInstruction = "instruction"
)

var (
	// ErrInvalid marks a malformed notification entry.
	ErrInvalid = errors.New("notify: invalid notification")
	// ErrUndelivered marks a batch in which at least one send failed.
	ErrUndelivered = errors.New("notify: notification not delivered")
)

// Control asks for reply controls to be attached.
type Control struct {
	Action  string             `json:"action" validate:"required,oneof='accept offer' instruction"`
	OfferID backend.FlexString `json:"offer_id"`
}

// Notification is one entry of a fan-out batch.
type Notification struct {
	ID                 int64    `json:"id" validate:"required"`
	Message            string   `json:"message" validate:"required"`
	Control            *Control `json:"control,omitempty"`
	WithDefaultOptions bool     `json:"withDefaultOptions"`
	Sticker            string   `json:"sticker,omitempty"`
}

// Fanout sends notifications. It never mutates sessions.
type Fanout struct {
	transport dispatch.Transport
	store     *session.Store
	adminID   int64
	devices   []string
	validate  *validator.Validate
}

// New builds a fan-out. devices are the names offered by the instruction control.
func New(transport dispatch.Transport, store *session.Store, adminID int64, devices []string) *Fanout {
	return &Fanout{
		transport: transport,
		store:     store,
		adminID:   adminID,
		devices:   devices,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// SetTransport replaces the transport once the Telegram runtime is up.
func (f *Fanout) SetTransport(t dispatch.Transport) {
	f.transport = t
}

// Deliver sends entries in order and stops at the first invalid entry.
// A failed send is logged and counted but does not stop the batch; the
// returned error then wraps the first send failure and is marked
// ErrUndelivered. The count of delivered entries is returned either way.
func (f *Fanout) Deliver(ctx context.Context, batch []Notification) (int, error) {
	var (
		sent      int
		failed    int
		firstFail error
	)
	for i, n := range batch {
		if err := f.check(n); err != nil {
			metrics.Notifications.WithLabelValues("invalid").Inc()
			logger.Warn(ctx, logger.CompNotify, "notification.invalid",
				slog.String("status", "fail"), slog.Int("count", i), logger.Err(err))
			return sent, errors.Wrapf(err, "entry %d", i)
		}
		if err := f.send(ctx, n); err != nil {
			metrics.Notifications.WithLabelValues("failed").Inc()
			logger.Error(ctx, logger.CompNotify, "notification.failed",
				slog.String("status", "fail"), slog.Int64("user_id", n.ID), logger.Err(err))
			failed++
			if firstFail == nil {
				firstFail = errors.Wrapf(err, "entry %d", i)
			}
			continue
		}
		sent++
		metrics.Notifications.WithLabelValues("sent").Inc()
	}
	if firstFail != nil {
		return sent, errors.Mark(errors.Wrapf(firstFail, "%d of %d sends failed", failed, len(batch)), ErrUndelivered)
	}
	logger.Info(ctx, logger.CompNotify, "batch.delivered",
		slog.String("status", "ok"), slog.Int("count", sent))
	return sent, nil
}

func (f *Fanout) check(n Notification) error {
	if err := f.validate.Struct(n); err != nil {
		return errors.Mark(err, ErrInvalid)
	}
	if n.Control != nil && n.Control.Action == ActionAcceptOffer && n.Control.OfferID == "" {
		return errors.Mark(errors.New("accept offer control without offer_id"), ErrInvalid)
	}
	return nil
}

func (f *Fanout) send(ctx context.Context, n Notification) error {
	if n.Sticker != "" {
		if err := f.transport.SendSticker(ctx, n.ID, n.Sticker); err != nil {
			return errors.Wrap(err, "send sticker")
		}
	}
	return f.transport.SendText(ctx, n.ID, format.Compact(n.Message), f.keyboard(ctx, n))
}

func (f *Fanout) keyboard(ctx context.Context, n Notification) menu.Keyboard {
	if n.Control != nil {
		switch n.Control.Action {
		case ActionAcceptOffer:
			if f.canDecide(n.ID) {
				return menu.AdminDecision(n.Control.OfferID.String())
			}
			logger.Info(ctx, logger.CompNotify, "controls.dropped",
				slog.String("status", "skip"), slog.Int64("user_id", n.ID),
				slog.String("offer_id", n.Control.OfferID.String()))
		case ActionInstruction:
			return menu.Devices(f.devices)
		}
	}
	if n.WithDefaultOptions {
		return menu.MainMenu()
	}
	return nil
}

// canDecide reports whether id is the administrator and has opened a conversation,
// so that the decision buttons will be routed.
func (f *Fanout) canDecide(id int64) bool {
	if f.adminID == 0 || id != f.adminID {
		return false
	}
	unlock := f.store.Lock(id)
	defer unlock()
	return f.store.Get(id) != nil
}
