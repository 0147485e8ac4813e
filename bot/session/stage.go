package session

// Stage is the offer workflow position of a session.
type Stage int

const (
	// Browsing is the idle stage: main menu or catalog on screen.
	Browsing Stage = iota
	// PromptingPromo waits for a promo code or the skip control.
	PromptingPromo
	// Submitting covers the createOffer call.
	Submitting
	// AwaitingPayment holds a priced offer until confirm or cancel.
	AwaitingPayment
)

func (s Stage) String() string {
	switch s {
	case Browsing:
		return "browsing"
	case PromptingPromo:
		return "prompting_promo"
	case Submitting:
		return "submitting"
	case AwaitingPayment:
		return "awaiting_payment"
	}
	return "unknown"
}

// transitions lists the allowed moves. Every stage may fall back to Browsing.
var transitions = map[Stage][]Stage{
	Browsing:        {PromptingPromo, Submitting},
	PromptingPromo:  {Submitting},
	Submitting:      {AwaitingPayment, PromptingPromo},
	AwaitingPayment: {},
}

// CanTransition reports whether the workflow may move from s to next.
func (s Stage) CanTransition(next Stage) bool {
	if next == Browsing {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PendingAction is how the next free-text or button event is interpreted.
type PendingAction int

const (
	// ActionNone routes events by their intent only.
	ActionNone PendingAction = iota
	// ActionAwaitingPromoCode treats free text as a promo code.
	ActionAwaitingPromoCode
	// ActionAwaitingPaymentDecision permits confirm and cancel.
	ActionAwaitingPaymentDecision
)

func (a PendingAction) String() string {
	switch a {
	case ActionAwaitingPromoCode:
		return "awaiting_promo_code"
	case ActionAwaitingPaymentDecision:
		return "awaiting_payment_decision"
	}
	return "none"
}
