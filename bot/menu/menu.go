// Package menu declares the reply controls of the bot independently of the
// chat transport: every button carries a stable intent and an optional payload.
package menu

import (
	"fmt"

	"github.com/m3rciful/vpnbot/bot/backend"
	"github.com/m3rciful/vpnbot/core/telegram/format"
)

// Intents are the stable identifiers routed by the dispatcher.
const (
	IntentMainMenu       = "main-menu"
	IntentAdminInfo      = "admin-info"
	IntentInstruction    = "instruction"
	IntentDevice         = "device"
	IntentUpdateQR       = "update-qrcode"
	IntentOfferInfo      = "offer-info"
	IntentNewOffer       = "new-offer"
	IntentPlan           = "plan"
	IntentNoPromo        = "no-promo"
	IntentConfirmPayment = "confirm-payment"
	IntentCancelOffer    = "cancel-offer"
	IntentAcceptOffer    = "accept-offer"
	IntentRejectOffer    = "reject-offer"
	IntentPendingOffers  = "pending-offers"
	IntentHandleDone     = "handle-done"
)

// Intents lists every intent, e.g. for callback registration.
var Intents = []string{
	IntentMainMenu, IntentAdminInfo, IntentInstruction, IntentDevice,
	IntentUpdateQR, IntentOfferInfo, IntentNewOffer, IntentPlan, IntentNoPromo,
	IntentConfirmPayment, IntentCancelOffer, IntentAcceptOffer, IntentRejectOffer,
	IntentPendingOffers, IntentHandleDone,
}

// Button is a single inline control.
type Button struct {
	Text    string
	Intent  string
	Payload string
}

// Keyboard is a list of rows.
type Keyboard [][]Button

func single(text, intent string) []Button {
	return []Button{{Text: text, Intent: intent}}
}

// Back is the "return to main page" row.
func Back() []Button {
	return single("Вернуться на главную ❌", IntentMainMenu)
}

// MainMenu is the default keyboard of a registered user.
func MainMenu() Keyboard {
	return Keyboard{
		single("Моя подписка 📶", IntentOfferInfo),
		single("Обновить QR-код подключения 🔄️", IntentUpdateQR),
		single("Новая заявка 🆕", IntentNewOffer),
		single("Как подключится ℹ️", IntentInstruction),
		single("Контакты администратора 👤", IntentAdminInfo),
	}
}

// Catalog renders one row per plan, in the given order, plus Back.
func Catalog(plans []backend.Plan) Keyboard {
	kb := make(Keyboard, 0, len(plans)+1)
	for _, p := range plans {
		kb = append(kb, []Button{{Text: PlanLabel(p), Intent: IntentPlan, Payload: p.ID}})
	}
	return append(kb, Back())
}

// PlanLabel is the catalog button text of a plan.
func PlanLabel(p backend.Plan) string {
	return fmt.Sprintf("%s | %s | %s Гб / Мес | %s ₽ / Мес",
		p.Title, format.DaysFromSeconds(p.DateLimit), format.Traffic(p.DataLimit), format.Number(p.Price))
}

// SkipPromo is shown while a promo code is awaited.
func SkipPromo() Keyboard {
	return Keyboard{single("Продолжить без промокода ❓", IntentNoPromo)}
}

// Payment holds the confirm and cancel controls of a pending offer.
func Payment() Keyboard {
	return Keyboard{
		single("Готово 👌", IntentConfirmPayment),
		single("Отменить заявку ❌", IntentCancelOffer),
	}
}

// Devices is the instruction chooser.
func Devices(names []string) Keyboard {
	kb := make(Keyboard, 0, len(names)+1)
	for _, n := range names {
		kb = append(kb, []Button{{Text: n, Intent: IntentDevice, Payload: n}})
	}
	return append(kb, Back())
}

// AdminDecision carries the offer id in both buttons so that the decision
// never depends on what the administrator's session holds.
func AdminDecision(offerID string) Keyboard {
	return Keyboard{{
		{Text: "✅ Принять", Intent: IntentAcceptOffer, Payload: offerID},
		{Text: "❌ Отклонить", Intent: IntentRejectOffer, Payload: offerID},
	}}
}

// PendingOffers lists one decision row per offer.
func PendingOffers(offers []backend.PendingOffer) Keyboard {
	kb := make(Keyboard, 0, len(offers)+1)
	for _, o := range offers {
		id := o.OfferID.String()
		kb = append(kb, []Button{
			{Text: "✅ #" + id, Intent: IntentAcceptOffer, Payload: id},
			{Text: "❌ #" + id, Intent: IntentRejectOffer, Payload: id},
		})
	}
	return append(kb, Back())
}

// HandleDone lets an unregistered visitor retry after setting a username.
func HandleDone() Keyboard {
	return Keyboard{single("Готово 👌", IntentHandleDone)}
}
