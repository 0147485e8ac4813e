// Package offer drives a session through plan selection, promo entry,
// submission and the payment decision.
package offer

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"github.com/m3rciful/vpnbot/bot/backend"
	"github.com/m3rciful/vpnbot/bot/menu"
	"github.com/m3rciful/vpnbot/bot/session"
	"github.com/m3rciful/vpnbot/core/logger"
	"github.com/m3rciful/vpnbot/core/metrics"
)

var (
	// ErrUnknownPlan is returned for a plan id missing from the cached catalog.
	ErrUnknownPlan = errors.New("offer: unknown plan")
	// ErrNoPendingAction is returned when the step does not match what the session awaits.
	ErrNoPendingAction = errors.New("offer: nothing awaits this input")
)

// Backend is the part of the subscription backend the workflow uses.
type Backend interface {
	Plans(ctx context.Context, userID int64) ([]backend.Plan, error)
	PriorPaidOffer(ctx context.Context, userID int64) (*backend.PaidOffer, error)
	CreateOffer(ctx context.Context, form backend.OfferForm) (*backend.OfferResult, error)
	RejectOffer(ctx context.Context, offerID string) error
	OfferStatus(ctx context.Context, userID int64) (*backend.OfferStatus, error)
}

// Resetter returns a session to its idle state.
type Resetter interface {
	Reset(s *session.Session)
}

// Config holds the workflow limits.
type Config struct {
	TrialPlanID       string
	MaxPromoLength    int
	NewOfferCooldown  time.Duration
	OfferInfoCooldown time.Duration
}

// Workflow implements the offer steps. Callers hold the session's store lock.
type Workflow struct {
	backend Backend
	store   Resetter
	cfg     Config
}

// New builds a workflow.
func New(b Backend, store Resetter, cfg Config) *Workflow {
	if cfg.MaxPromoLength <= 0 {
		cfg.MaxPromoLength = 10
	}
	if cfg.TrialPlanID == "" {
		cfg.TrialPlanID = "free"
	}
	return &Workflow{backend: b, store: store, cfg: cfg}
}

// Start refreshes the catalog, highest price first.
func (w *Workflow) Start(ctx context.Context, s *session.Session) (Outcome, error) {
	if s.CanSettle() {
		return Outcome{Kind: KindPaymentPending, Offer: s.Pending()}, nil
	}
	w.store.Reset(s)
	// The old catalog must not validate plan ids if the refresh fails.
	s.SetCatalog(nil)

	plans, err := w.backend.Plans(ctx, s.UserID)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "load plans")
	}
	sorted := append([]backend.Plan(nil), plans...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Price > sorted[j].Price })
	s.SetCatalog(sorted)
	s.Replies = menu.Catalog(sorted)
	return Outcome{Kind: KindCatalog, Plans: sorted}, nil
}

// SelectPlan starts a draft for a catalog plan and either prompts for a
// promo code or submits right away.
func (w *Workflow) SelectPlan(ctx context.Context, s *session.Session, planID string) (Outcome, error) {
	if s.CanSettle() {
		return Outcome{Kind: KindPaymentPending, Offer: s.Pending()}, nil
	}
	plan, ok := s.Plan(planID)
	if !ok {
		return Outcome{}, errors.Wrapf(ErrUnknownPlan, "plan %q", planID)
	}
	if s.Stage() != session.Browsing {
		w.store.Reset(s)
	}
	if err := s.SelectPlan(plan.ID); err != nil {
		return Outcome{}, err
	}

	skip := PromoAsked
	if !plan.WithPromo {
		skip = PromoUnsupported
	} else {
		prior, err := w.backend.PriorPaidOffer(ctx, s.UserID)
		if err != nil {
			w.store.Reset(s)
			return Outcome{}, errors.Wrap(err, "look up paid offers")
		}
		if prior != nil {
			skip = PromoPaidBefore
		}
	}
	if skip != PromoAsked {
		out, err := w.submit(ctx, s, false)
		out.Skip = skip
		return out, err
	}

	if err := s.AwaitPromo(); err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: KindPromoPrompt}, nil
}

// PromoInput takes a typed promo code. Codes longer than the configured
// number of characters are refused without touching the session.
func (w *Workflow) PromoInput(ctx context.Context, s *session.Session, text string) (Outcome, error) {
	if s.PendingAction() != session.ActionAwaitingPromoCode {
		return Outcome{}, ErrNoPendingAction
	}
	code := strings.TrimSpace(text)
	if utf8.RuneCountInString(code) > w.cfg.MaxPromoLength {
		return Outcome{Kind: KindPromoTooLong}, nil
	}
	if err := s.SetPromo(code); err != nil {
		return Outcome{}, err
	}
	return w.submit(ctx, s, false)
}

// SkipPromo submits the draft without a promo code.
func (w *Workflow) SkipPromo(ctx context.Context, s *session.Session) (Outcome, error) {
	if s.PendingAction() != session.ActionAwaitingPromoCode {
		return Outcome{}, ErrNoPendingAction
	}
	return w.submit(ctx, s, false)
}

// ActivateTrial submits the trial plan for a freshly registered user and
// returns the connection artifact without looking up the offer status.
func (w *Workflow) ActivateTrial(ctx context.Context, s *session.Session) (Outcome, error) {
	if err := s.SelectPlan(w.cfg.TrialPlanID); err != nil {
		return Outcome{}, err
	}
	return w.submit(ctx, s, true)
}

// Confirm finalises the pending offer locally; the administrator reviews it
// later. The new-offer cooldown starts here.
func (w *Workflow) Confirm(ctx context.Context, s *session.Session) (Outcome, error) {
	if !s.CanSettle() {
		return Outcome{}, ErrNoPendingAction
	}
	snap := s.Pending()
	w.store.Reset(s)
	s.Gate.Arm(session.GateNewOffer, w.cfg.NewOfferCooldown)
	w.record(ctx, s, KindConfirmed, slog.String("offer_id", snap.OfferID))
	return Outcome{Kind: KindConfirmed, Offer: snap}, nil
}

// Cancel rejects the pending offer on the backend and resets the session.
func (w *Workflow) Cancel(ctx context.Context, s *session.Session) (Outcome, error) {
	if !s.CanSettle() {
		return Outcome{}, ErrNoPendingAction
	}
	snap := s.Pending()
	err := w.backend.RejectOffer(ctx, snap.OfferID)
	w.store.Reset(s)
	if err != nil {
		return Outcome{}, errors.Wrapf(err, "reject offer %s", snap.OfferID)
	}
	w.record(ctx, s, KindCancelled, slog.String("offer_id", snap.OfferID))
	return Outcome{Kind: KindCancelled, Offer: snap}, nil
}

func (w *Workflow) submit(ctx context.Context, s *session.Session, trial bool) (Outcome, error) {
	if err := s.BeginSubmit(); err != nil {
		return Outcome{}, err
	}
	form := s.Form()
	res, err := w.backend.CreateOffer(ctx, backend.OfferForm{
		PlanID:    form.PlanID,
		UserID:    form.OwnerID,
		PromoCode: form.PromoCode,
	})
	if err != nil {
		return w.submitFailed(ctx, s, form, err)
	}

	if res.Activated() {
		w.store.Reset(s)
		w.record(ctx, s, KindActivated, slog.String("plan_id", form.PlanID))
		out := Outcome{Kind: KindActivated, Connection: res.Connection}
		if trial {
			return out, nil
		}
		s.Gate.Arm(session.GateOfferInfo, w.cfg.OfferInfoCooldown)
		status, err := w.backend.OfferStatus(ctx, s.UserID)
		if err != nil {
			logger.Warn(ctx, logger.CompOffer, "status.degraded",
				slog.String("status", "skip"), slog.Int64("user_id", s.UserID), logger.Err(err))
			return out, nil
		}
		out.Status = status
		return out, nil
	}

	pending := session.PendingOffer{
		OfferID:   res.OfferID.String(),
		PlanName:  res.PlanName,
		Price:     res.Price,
		Discount:  res.Discount,
		PromoName: res.PromoName,
		ToPay:     res.ToPay,
	}
	if err := s.AwaitPayment(pending); err != nil {
		w.store.Reset(s)
		return Outcome{}, err
	}
	w.record(ctx, s, KindPaymentRequired,
		slog.String("plan_id", form.PlanID), slog.String("offer_id", pending.OfferID))
	return Outcome{Kind: KindPaymentRequired, Offer: s.Pending()}, nil
}

func (w *Workflow) submitFailed(ctx context.Context, s *session.Session, form session.Form, err error) (Outcome, error) {
	de, domain := backend.AsDomainError(err)
	switch {
	case domain && backend.IsTrialUsed(err):
		w.store.Reset(s)
		w.record(ctx, s, KindTrialUsed, slog.String("plan_id", form.PlanID))
		return Outcome{Kind: KindTrialUsed, Message: de.Message}, nil
	case domain && form.PromoCode != "" && backend.IsPromoRejected(err):
		if rerr := s.ResumePromo(); rerr != nil {
			w.store.Reset(s)
			return Outcome{}, rerr
		}
		w.record(ctx, s, KindPromoRejected, slog.String("plan_id", form.PlanID))
		return Outcome{Kind: KindPromoRejected, Message: de.Message}, nil
	}
	w.store.Reset(s)
	metrics.OfferOutcomes.WithLabelValues("fail").Inc()
	return Outcome{}, errors.Wrapf(err, "create offer for plan %s", form.PlanID)
}

func (w *Workflow) record(ctx context.Context, s *session.Session, kind Kind, attrs ...slog.Attr) {
	metrics.OfferOutcomes.WithLabelValues(kind.String()).Inc()
	attrs = append([]slog.Attr{
		slog.String("status", "ok"),
		slog.String("outcome", kind.String()),
		slog.Int64("user_id", s.UserID),
	}, attrs...)
	logger.Info(ctx, logger.CompOffer, "offer."+kind.String(), attrs...)
}
