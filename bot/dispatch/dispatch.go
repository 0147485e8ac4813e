// Package dispatch turns inbound chat events into session mutations, offer
// workflow steps and replies.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/m3rciful/vpnbot/bot/backend"
	"github.com/m3rciful/vpnbot/bot/botconfig"
	"github.com/m3rciful/vpnbot/bot/menu"
	"github.com/m3rciful/vpnbot/bot/offer"
	"github.com/m3rciful/vpnbot/bot/session"
	"github.com/m3rciful/vpnbot/bot/settings"
	"github.com/m3rciful/vpnbot/core/logger"
	"github.com/m3rciful/vpnbot/core/metrics"
)

var (
	// ErrUnknownIntent is returned for a control the dispatcher does not route.
	ErrUnknownIntent = errors.New("dispatch: unknown intent")
	// ErrUnknownDevice is returned for a device missing from the instructions list.
	ErrUnknownDevice = errors.New("dispatch: unknown device")
	// ErrAdminOnly is returned when a non-administrator uses an administrative control.
	ErrAdminOnly = errors.New("dispatch: administrator only")
)

// Sender identifies the chat user behind an event.
type Sender struct {
	ID        int64
	Username  string
	FirstName string
}

// Transport delivers replies to a user.
type Transport interface {
	SendText(ctx context.Context, userID int64, text string, kb menu.Keyboard) error
	SendImage(ctx context.Context, userID int64, png []byte, caption string, kb menu.Keyboard) error
	SendSticker(ctx context.Context, userID int64, stickerID string) error
}

// Renderer encodes connection strings as images.
type Renderer interface {
	PNG(content string) ([]byte, error)
}

// Settings exposes the runtime-editable values.
type Settings interface {
	Current() settings.Values
}

// Backend is the part of the subscription backend the dispatcher calls
// directly, on top of what the offer workflow needs.
type Backend interface {
	offer.Backend
	FindUser(ctx context.Context, telegramID int64) (*backend.User, error)
	FindUserByInviteCode(ctx context.Context, code string) (*backend.User, error)
	RegisterUser(ctx context.Context, reg backend.Registration) error
	ServiceConfig(ctx context.Context) (*backend.ServiceConfig, error)
	AcceptOffer(ctx context.Context, offerID string) error
	RefreshConnection(ctx context.Context, userID int64) error
	PendingOffers(ctx context.Context) ([]backend.PendingOffer, error)
}

// Config carries the static parts of dispatching.
type Config struct {
	AdminID             int64
	BotUsername         string
	NewOfferCooldown    time.Duration
	UpdateQRCooldown    time.Duration
	OfferInfoCooldown   time.Duration
	Devices             []botconfig.Device
	PaymentImage        []byte
	PaymentInstructions string
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Backend   Backend
	Store     *session.Store
	Workflow  *offer.Workflow
	Transport Transport
	QR        Renderer
	Settings  Settings
}

// Service routes events. Each entry point holds the sender's store lock for
// its whole duration, backend calls included, so events of one user are
// handled strictly one after another.
type Service struct {
	backend   Backend
	store     *session.Store
	workflow  *offer.Workflow
	transport Transport
	qr        Renderer
	settings  Settings
	cfg       Config
}

// New builds a Service.
func New(deps Deps, cfg Config) *Service {
	return &Service{
		backend:   deps.Backend,
		store:     deps.Store,
		workflow:  deps.Workflow,
		transport: deps.Transport,
		qr:        deps.QR,
		settings:  deps.Settings,
		cfg:       cfg,
	}
}

// SetTransport replaces the transport; the Telegram runtime is only available after wiring.
func (s *Service) SetTransport(t Transport) {
	s.transport = t
}

// IsAdmin reports whether id is the configured administrator.
func (s *Service) IsAdmin(id int64) bool {
	return s.cfg.AdminID != 0 && id == s.cfg.AdminID
}

// Start handles /start. referral is the optional deep-link payload.
func (s *Service) Start(ctx context.Context, from Sender, referral string) error {
	unlock := s.store.Lock(from.ID)
	defer unlock()

	sess := s.store.Get(from.ID)
	if sess == nil {
		return s.initialize(ctx, from, referral)
	}
	return s.settle(ctx, sess, s.mainMenu(ctx, sess))
}

// Button handles an inline control.
func (s *Service) Button(ctx context.Context, from Sender, intent, payload string) error {
	unlock := s.store.Lock(from.ID)
	defer unlock()

	sess := s.store.Get(from.ID)
	if sess == nil {
		return s.initialize(ctx, from, "")
	}
	return s.settle(ctx, sess, s.route(ctx, sess, intent, payload))
}

// Text handles free text: a promo code while one is awaited, otherwise
// a "not understood" reply with the current controls.
func (s *Service) Text(ctx context.Context, from Sender, text string) error {
	unlock := s.store.Lock(from.ID)
	defer unlock()

	sess := s.store.Get(from.ID)
	if sess == nil {
		return s.initialize(ctx, from, "")
	}
	if sess.PendingAction() == session.ActionAwaitingPromoCode {
		out, err := s.workflow.PromoInput(ctx, sess, text)
		if err != nil {
			return s.settle(ctx, sess, err)
		}
		return s.settle(ctx, sess, s.present(ctx, sess, out))
	}
	return s.reply(ctx, sess, textNotUnderstood)
}

func (s *Service) route(ctx context.Context, sess *session.Session, intent, payload string) error {
	switch intent {
	case menu.IntentMainMenu, menu.IntentHandleDone:
		return s.mainMenu(ctx, sess)
	case menu.IntentAdminInfo:
		return s.reply(ctx, sess, s.settings.Current().AdminContacts)
	case menu.IntentInstruction:
		return s.transport.SendText(ctx, sess.UserID, textDevices, menu.Devices(s.deviceNames()))
	case menu.IntentDevice:
		return s.device(ctx, sess, payload)
	case menu.IntentUpdateQR:
		return s.updateQR(ctx, sess)
	case menu.IntentOfferInfo:
		return s.offerInfo(ctx, sess)
	case menu.IntentNewOffer:
		if !sess.Gate.Allowed(session.GateNewOffer) {
			return s.deny(ctx, sess, session.GateNewOffer, textDenied(session.GateNewOffer, s.cfg.NewOfferCooldown, sess.Gate.Remaining(session.GateNewOffer)))
		}
		return s.step(ctx, sess, func() (offer.Outcome, error) { return s.workflow.Start(ctx, sess) })
	case menu.IntentPlan:
		return s.step(ctx, sess, func() (offer.Outcome, error) { return s.workflow.SelectPlan(ctx, sess, payload) })
	case menu.IntentNoPromo:
		return s.step(ctx, sess, func() (offer.Outcome, error) { return s.workflow.SkipPromo(ctx, sess) })
	case menu.IntentConfirmPayment:
		return s.step(ctx, sess, func() (offer.Outcome, error) { return s.workflow.Confirm(ctx, sess) })
	case menu.IntentCancelOffer:
		return s.step(ctx, sess, func() (offer.Outcome, error) { return s.workflow.Cancel(ctx, sess) })
	case menu.IntentAcceptOffer, menu.IntentRejectOffer:
		return s.decide(ctx, sess, intent == menu.IntentAcceptOffer, payload)
	case menu.IntentPendingOffers:
		return s.pendingOffers(ctx, sess)
	}
	return errors.Wrapf(ErrUnknownIntent, "intent %q", intent)
}

func (s *Service) step(ctx context.Context, sess *session.Session, run func() (offer.Outcome, error)) error {
	out, err := run()
	if err != nil {
		return err
	}
	return s.present(ctx, sess, out)
}

// mainMenu withdraws a pending offer before going home.
func (s *Service) mainMenu(ctx context.Context, sess *session.Session) error {
	if sess.CanSettle() {
		return s.step(ctx, sess, func() (offer.Outcome, error) { return s.workflow.Cancel(ctx, sess) })
	}
	s.store.Reset(sess)
	return s.reply(ctx, sess, textHome)
}

func (s *Service) deviceNames() []string {
	names := make([]string, 0, len(s.cfg.Devices))
	for _, d := range s.cfg.Devices {
		names = append(names, d.Name)
	}
	return names
}

func (s *Service) device(ctx context.Context, sess *session.Session, name string) error {
	for _, d := range s.cfg.Devices {
		if d.Name == name {
			return s.reply(ctx, sess, textDevice(d))
		}
	}
	return errors.Wrapf(ErrUnknownDevice, "device %q", name)
}

// updateQR is blocked by the status view cooldown as well as its own.
func (s *Service) updateQR(ctx context.Context, sess *session.Session) error {
	if !sess.Gate.Allowed(session.GateOfferInfo) {
		return s.deny(ctx, sess, session.GateOfferInfo, textQRBlockedByView(sess.Gate.Remaining(session.GateOfferInfo)))
	}
	if !sess.Gate.Allowed(session.GateUpdateQR) {
		return s.deny(ctx, sess, session.GateUpdateQR, textDenied(session.GateUpdateQR, s.cfg.UpdateQRCooldown, sess.Gate.Remaining(session.GateUpdateQR)))
	}
	if err := s.backend.RefreshConnection(ctx, sess.UserID); err != nil {
		return errors.Wrap(err, "refresh connection")
	}
	sess.Gate.Arm(session.GateUpdateQR, s.cfg.UpdateQRCooldown)
	return s.reply(ctx, sess, textQRUpdated)
}

func (s *Service) offerInfo(ctx context.Context, sess *session.Session) error {
	if !sess.Gate.Allowed(session.GateOfferInfo) {
		return s.deny(ctx, sess, session.GateOfferInfo, textDenied(session.GateOfferInfo, s.cfg.OfferInfoCooldown, sess.Gate.Remaining(session.GateOfferInfo)))
	}
	st, err := s.backend.OfferStatus(ctx, sess.UserID)
	if err != nil {
		return errors.Wrap(err, "offer status")
	}
	sess.Gate.Arm(session.GateOfferInfo, s.cfg.OfferInfoCooldown)
	if st.Connection == "" {
		return s.reply(ctx, sess, textQueued(st))
	}
	svc, err := s.backend.ServiceConfig(ctx)
	if err != nil {
		return errors.Wrap(err, "service config")
	}
	return s.sendConnection(ctx, sess, st.Connection, textStatus(st.Connection, st, svc, s.cfg.BotUsername))
}

func (s *Service) decide(ctx context.Context, sess *session.Session, accept bool, offerID string) error {
	if !s.IsAdmin(sess.UserID) {
		return ErrAdminOnly
	}
	if offerID == "" {
		return errors.Wrap(ErrUnknownIntent, "decision without offer id")
	}
	var err error
	if accept {
		err = s.backend.AcceptOffer(ctx, offerID)
	} else {
		err = s.backend.RejectOffer(ctx, offerID)
	}
	if err != nil {
		return errors.Wrapf(err, "decide offer %s", offerID)
	}
	logger.Info(ctx, logger.CompDispatch, "offer.decided",
		slog.String("status", "ok"), slog.String("offer_id", offerID), slog.Bool("accepted", accept))
	return s.reply(ctx, sess, textDecision(offerID, accept))
}

// PendingOffers lists offers awaiting review; used by the /pending command.
func (s *Service) PendingOffers(ctx context.Context, from Sender) error {
	unlock := s.store.Lock(from.ID)
	defer unlock()

	sess := s.store.Get(from.ID)
	if sess == nil {
		return s.initialize(ctx, from, "")
	}
	return s.settle(ctx, sess, s.pendingOffers(ctx, sess))
}

func (s *Service) pendingOffers(ctx context.Context, sess *session.Session) error {
	if !s.IsAdmin(sess.UserID) {
		return ErrAdminOnly
	}
	offers, err := s.backend.PendingOffers(ctx)
	if err != nil {
		return errors.Wrap(err, "list pending offers")
	}
	kb := sess.Replies
	if len(offers) > 0 {
		kb = menu.PendingOffers(offers)
	}
	return s.transport.SendText(ctx, sess.UserID, textPendingList(offers), kb)
}

func (s *Service) deny(ctx context.Context, sess *session.Session, gate, text string) error {
	metrics.GateDenials.WithLabelValues(gate).Inc()
	logger.Info(ctx, logger.CompDispatch, "gate.denied",
		slog.String("status", "denied"),
		slog.String("gate", gate),
		slog.Int64("user_id", sess.UserID),
		slog.Duration("wait", sess.Gate.Remaining(gate)),
	)
	return s.reply(ctx, sess, text)
}

func (s *Service) reply(ctx context.Context, sess *session.Session, text string) error {
	return s.transport.SendText(ctx, sess.UserID, text, sess.Replies)
}

// sendConnection sends the QR image of a connection string, or the caption
// alone when the image cannot be rendered.
func (s *Service) sendConnection(ctx context.Context, sess *session.Session, connection, caption string) error {
	png, err := s.qr.PNG(connection)
	if err != nil {
		logger.Warn(ctx, logger.CompDispatch, "qr.failed", slog.String("status", "skip"), logger.Err(err))
		return s.reply(ctx, sess, caption)
	}
	return s.transport.SendImage(ctx, sess.UserID, png, caption, sess.Replies)
}
