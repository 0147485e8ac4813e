package offer

import (
	"github.com/m3rciful/vpnbot/bot/backend"
	"github.com/m3rciful/vpnbot/bot/session"
)

// Kind identifies what a workflow step produced.
type Kind int

const (
	// KindCatalog carries the refreshed plan list.
	KindCatalog Kind = iota + 1
	// KindPromoPrompt asks for a promo code.
	KindPromoPrompt
	// KindPromoTooLong rejects the typed code locally; state is unchanged.
	KindPromoTooLong
	// KindPromoRejected relays the backend's promo refusal and prompts again.
	KindPromoRejected
	// KindActivated carries a connection artifact.
	KindActivated
	// KindPaymentRequired carries the priced pending offer.
	KindPaymentRequired
	// KindTrialUsed reports that the trial was already consumed.
	KindTrialUsed
	// KindConfirmed carries the snapshot of the confirmed offer.
	KindConfirmed
	// KindCancelled reports a rejected pending offer.
	KindCancelled
	// KindPaymentPending refuses a new draft while a payment is awaited.
	KindPaymentPending
)

var kindNames = map[Kind]string{
	KindCatalog:         "catalog",
	KindPromoPrompt:     "promo_prompt",
	KindPromoTooLong:    "promo_too_long",
	KindPromoRejected:   "promo_rejected",
	KindActivated:       "activated",
	KindPaymentRequired: "payment_required",
	KindTrialUsed:       "trial_used",
	KindConfirmed:       "confirmed",
	KindCancelled:       "cancelled",
	KindPaymentPending:  "payment_pending",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// PromoSkip tells why a submission went ahead without asking for a promo code.
type PromoSkip int

const (
	// PromoAsked means the user was prompted (or the step did not involve a promo).
	PromoAsked PromoSkip = iota
	// PromoUnsupported: the plan does not accept promo codes.
	PromoUnsupported
	// PromoPaidBefore: promo codes are limited to the first paid offer.
	PromoPaidBefore
)

// Outcome is the result of a workflow step. Only the fields relevant to
// Kind are set.
type Outcome struct {
	Kind Kind
	Skip PromoSkip

	Plans      []backend.Plan
	Offer      *session.PendingOffer
	Connection string
	// Status is nil when the post-activation status lookup failed.
	Status *backend.OfferStatus
	// Message is the backend's text for trial and promo refusals.
	Message string
}
