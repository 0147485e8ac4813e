// Package session holds the per-user conversation state, its cooldown gate
// and the in-memory store that serialises access to it.
package session

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/m3rciful/vpnbot/bot/backend"
	"github.com/m3rciful/vpnbot/bot/menu"
)

// ErrInvalidTransition is returned when a workflow step does not fit the current stage.
var ErrInvalidTransition = errors.New("session: invalid stage transition")

// Form accumulates the fields of the offer being submitted.
type Form struct {
	PlanID    string
	PromoCode string
	OwnerID   int64
}

// PendingOffer is the snapshot of a priced, not yet confirmed offer.
type PendingOffer struct {
	OfferID   string
	PlanName  string
	Price     float64
	Discount  float64
	PromoName string
	ToPay     float64
}

// Session is the conversation state of one user. All access goes through
// Store.Lock for that user.
type Session struct {
	UserID int64
	Handle string
	// Catalog is the plan list of the last "start offer", highest price first.
	Catalog []backend.Plan
	// Replies is the keyboard currently attached to replies.
	Replies menu.Keyboard
	Gate    *Gate

	stage   Stage
	form    Form
	pending *PendingOffer
}

// Stage returns the workflow stage.
func (s *Session) Stage() Stage { return s.stage }

// Form returns a copy of the accumulated form.
func (s *Session) Form() Form { return s.form }

// Pending returns a copy of the pending offer snapshot, or nil.
func (s *Session) Pending() *PendingOffer {
	if s.pending == nil {
		return nil
	}
	p := *s.pending
	return &p
}

// PendingAction derives the expected next input from the stage.
func (s *Session) PendingAction() PendingAction {
	switch s.stage {
	case PromptingPromo:
		return ActionAwaitingPromoCode
	case AwaitingPayment:
		return ActionAwaitingPaymentDecision
	}
	return ActionNone
}

// CanSettle reports whether confirm or cancel may act on a pending offer.
func (s *Session) CanSettle() bool {
	return s.stage == AwaitingPayment && s.pending != nil
}

// SetCatalog replaces the cached catalog.
func (s *Session) SetCatalog(plans []backend.Plan) {
	s.Catalog = plans
}

// Plan looks a plan up in the cached catalog.
func (s *Session) Plan(id string) (backend.Plan, bool) {
	for _, p := range s.Catalog {
		if p.ID == id {
			return p, true
		}
	}
	return backend.Plan{}, false
}

// SelectPlan records the chosen plan as the draft of a new offer.
func (s *Session) SelectPlan(planID string) error {
	if s.stage != Browsing {
		return s.invalid(Browsing)
	}
	s.form = Form{PlanID: planID, OwnerID: s.UserID}
	return nil
}

// AwaitPromo waits for a promo code for the selected plan.
func (s *Session) AwaitPromo() error {
	if s.form.PlanID == "" {
		return errors.Wrap(ErrInvalidTransition, "session: promo prompt without a plan")
	}
	if err := s.move(PromptingPromo); err != nil {
		return err
	}
	s.form.PromoCode = ""
	s.Replies = menu.SkipPromo()
	return nil
}

// SetPromo stores the promo code typed while prompting.
func (s *Session) SetPromo(code string) error {
	if s.stage != PromptingPromo {
		return s.invalid(PromptingPromo)
	}
	s.form.PromoCode = code
	return nil
}

// BeginSubmit marks the form as being sent to the backend.
func (s *Session) BeginSubmit() error {
	if s.form.PlanID == "" {
		return errors.Wrap(ErrInvalidTransition, "session: submit without a plan")
	}
	return s.move(Submitting)
}

// ResumePromo goes back to prompting after the backend refused the promo code.
func (s *Session) ResumePromo() error {
	if s.stage != Submitting {
		return s.invalid(Submitting)
	}
	return s.AwaitPromo()
}

// AwaitPayment stores the priced offer and offers confirm and cancel.
func (s *Session) AwaitPayment(p PendingOffer) error {
	if err := s.move(AwaitingPayment); err != nil {
		return err
	}
	s.pending = &p
	s.Replies = menu.Payment()
	return nil
}

// reset returns to Browsing; gate, identity, handle and catalog are kept.
func (s *Session) reset() {
	s.stage = Browsing
	s.form = Form{}
	s.pending = nil
	s.Replies = menu.MainMenu()
}

func (s *Session) move(next Stage) error {
	if !s.stage.CanTransition(next) {
		return errors.Wrapf(ErrInvalidTransition, "session: %s -> %s", s.stage, next)
	}
	s.stage = next
	return nil
}

func (s *Session) invalid(want Stage) error {
	return errors.Wrap(ErrInvalidTransition, fmt.Sprintf("session: in %s, want %s", s.stage, want))
}
