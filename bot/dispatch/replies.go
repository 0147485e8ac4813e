package dispatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/m3rciful/vpnbot/bot/backend"
	"github.com/m3rciful/vpnbot/bot/botconfig"
	"github.com/m3rciful/vpnbot/bot/session"
	"github.com/m3rciful/vpnbot/core/telegram/format"
)

// Templates are compacted once, before any value is substituted, so that
// connection strings and backend texts are never rewritten.
const (
	textHome          = "Вы на главной странице своего аккаунта ℹ️"
	textNotUnderstood = "❓Команда не распознана."
	textCatalog       = "Выберите подписку 👇"
	textDevices       = "Какое у вас устройство ? 👇"
	textPromoTooLong  = "Введенный промокод слишком длинный 🔂"
	textTrialUsed     = "Пробная подписка доступна только на первый заказ ℹ️"
	textNoPromo       = "Эта подписка не поддерживает промокоды ℹ️"
	textQRUpdated     = "QR-код обновлен 🔄️\nВыберите опцию \"Моя подписка\", чтобы просмотреть."
	textNoPending     = "Нет заявок, ожидающих решения ℹ️"
	textAdminGreeting = "Администратор распознан. Вы будете получать уведомления о новых пользователях, заявках и прочую информацию"
)

var (
	textPaidBefore = format.Compact(`Промокод доступен только при первой оплате ℹ️/n/n
		Чтобы получить больше скидок, пригласите друга по своему личному промокоду. За каждого приглашенного друга, вы получаете скидку 25% на следующую оплату.`)

	textPromoPrompt = format.Compact(`Хотите больше сэкономить ?/n/n
		Введите промокод, чтобы получить скидку на оплату ℹ️`)

	textPaymentPending = format.Compact(`<b>🧾 У вас есть неоплаченная заявка</b>/n/n
		Подтвердите оплату или отмените заявку, чтобы оформить новую 👇`)

	textNoUsername = format.Compact(`Похоже, что вы не указали имя в телеграм при регистрации ℹ️/n/n
		Ваше имя будет использоваться для удобства связи с вами в случае необходимости. Откройте настройки, и укажите его в графе "Имя пользователя", чтобы продолжить./n/n
		⚙️ Настройки ➡️ Имя пользователя`)

	tmplWelcome = format.Compact(`%s/n/n
		<b>Ваша строка для подключения к VPN 🔥</b>/n
		<pre><code>%s</code></pre>/n/n
		Если не подключались ранее, выберите опцию <b>"Как подключится"</b> ниже 👇`)

	tmplConfirmed = format.Compact(`<b>✔️ Заявка отправлена</b>/n/n
		Тип подписки — %s/n
		Цена — %s ₽/n
		К оплате с учетом скидки — %s ₽/n
		Использованный промокод — %s/n
		Скидка по оплате — %s%%/n/n
		<b>🧩 Заявка в очереди</b>/n/n
		Также статус заявки можно проверить в опции <b>"Моя подписка"</b>`)

	tmplPayment = format.Compact(`<b>К оплате: %s ₽</b>/n
		Скидка по промокоду %s — %s%% ℹ️/n/n`)

	tmplQueued = format.Compact(`<b>🧩 Ваша заявка в очереди</b>/n/n
		Наименование — %s/n
		Трафик — %s ГБ / Мес/n
		Срок — %s/n/n
		<b>ℹ️ Вы также получите уведомление после обработки заявки </b>`)

	tmplConnection = format.Compact(`QR-код для подключения по вашей подписке./n/n
		<b>Или скопируйте строку подключения для импорта 👇</b>/n
		<pre><code>%s</code></pre>/n/n`)

	tmplStatus = format.Compact(`🌐 Статус: %s/n/n
		💻 Вы можете подключить любое количество устройств/n/n
		ℹ️ Название подписки: %s/n/n
		📶 Трафик: %s ГБ/n/n`)

	textRecounted = format.Compact(`➗ Трафик перерасчитан с учетом обновления QR-кода/n/n`)

	tmplUsage = format.Compact(`ℹ️ Использовано: %s/n/n
		📅 Дата окончания: %s/n/n
		ℹ️ Создан: %s/n/n`)

	tmplReferral = format.Compact(`<b>Пригласите друга по этой реферальной ссылке 👇</b>/n
		<pre><code>https://t.me/%s?start=%s</code></pre>/n/n
		👥 Приглашено пользователей: %d/n/n
		ℹ️ Скидка на следующий месяц: %s%%/n/n`)

	textReferralLocked = "<b>При оформлении платной подписки вам доступна реферальня ссылка.</b> "

	tmplInviteTerms = format.Compact(`За каждого приглашенного друга, вы получаете скидку <b>%s%%</b> на следующую оплату, друг — <b>%s%%</b>./n/n
		За двух приглашенных друзей вы получаете <b><u>бесплатный месяц на любой тариф</u></b> 🎁`)

	tmplDevice = format.Compact(`Смотрите видео, как подключить <a href='%s'>%s 👇</a>/n/n
		✍️ Или прочтите <a href='%s'>текстовую инструкцию</a>`)
)

func esc(s string) string { return format.EscapeHTML(s) }

func textWelcomeBack(nickname string) string {
	return fmt.Sprintf("Рады вас видеть! %s 👋👋👋", esc(nickname))
}

func textWelcome(welcome, connection string) string {
	return fmt.Sprintf(tmplWelcome, format.Compact(welcome), esc(connection))
}

func textPromoRejected(msg string) string {
	return esc(msg) + " 🔂"
}

func textConfirmed(p *session.PendingOffer) string {
	return fmt.Sprintf(tmplConfirmed,
		esc(p.PlanName), format.Number(p.Price), format.Number(p.ToPay), esc(p.PromoName), format.Number(p.Discount))
}

func textPayment(p *session.PendingOffer, instructions string) string {
	return fmt.Sprintf(tmplPayment, format.Number(p.ToPay), esc(p.PromoName), format.Number(p.Discount)) + format.Compact(instructions)
}

func textQueued(st *backend.OfferStatus) string {
	return fmt.Sprintf(tmplQueued,
		esc(st.PlanName), format.Traffic(st.TrafficLimitGB), format.DaysFromSeconds(st.DateLimit.Int64()))
}

// textStatus is the QR caption of the subscription view. cfg may be nil, in
// which case the referral terms are left out.
func textStatus(connection string, st *backend.OfferStatus, cfg *backend.ServiceConfig, botUsername string) string {
	var b strings.Builder
	fmt.Fprintf(&b, tmplConnection, esc(connection))
	if st == nil {
		return strings.TrimSpace(b.String())
	}

	state := "Подписка действует ✔️"
	if st.IsExpired {
		state = "Подписка истекла ❌"
	}
	traffic := format.Unlimited
	if st.TrafficLimitGB > 0 {
		traffic = format.Number(st.TrafficLimitGB)
	}
	fmt.Fprintf(&b, tmplStatus, state, esc(st.PlanName), traffic)
	if st.LimitRecounted {
		b.WriteString(textRecounted)
	}
	fmt.Fprintf(&b, tmplUsage, format.Bytes(st.UsedTraffic), esc(st.DateLimit.String()), esc(st.CreatedDate.String()))

	if cfg == nil {
		return strings.TrimSpace(b.String())
	}
	if st.Price == 0 {
		b.WriteString(textReferralLocked)
	} else {
		fmt.Fprintf(&b, tmplReferral, botUsername, esc(st.InviteCode), st.UserInviteCount, format.Number(st.NextPayDiscount))
	}
	fmt.Fprintf(&b, tmplInviteTerms, format.Number(cfg.InviteDiscount), format.Number(cfg.ForInvitedDiscount))
	return b.String()
}

func textDevice(d botconfig.Device) string {
	label := "(видео скоро будет)"
	if d.VideoURL != "" {
		label = esc(d.Name)
	}
	return fmt.Sprintf(tmplDevice, esc(d.VideoURL), label, esc(d.Instruction))
}

// textDenied names the configured period of the gate and the wait left.
func textDenied(gate string, period, left time.Duration) string {
	var base string
	switch gate {
	case session.GateNewOffer:
		base = "Новую заявку можно оформить не чаще одного раза в %s с начала последней заявки 🔙"
	case session.GateUpdateQR:
		base = "Обновить QR-код можно не чаще одного раза в %s 🔙"
	case session.GateOfferInfo:
		base = "Просмотреть информацию по подписке можно не чаще одного раза в %s 🔙"
	}
	return fmt.Sprintf(base, format.Wait(period)) + "\n⏳ Осталось: " + format.Wait(left)
}

// textQRBlockedByView is shown when an update is tried while the status view is still rate limited.
func textQRBlockedByView(left time.Duration) string {
	return "Нельзя обновить QR-код до окончания ограничения по просмотру опции \"Моя подписка\" 🔙\n⏳ Осталось: " + format.Wait(left)
}

func textDecision(offerID string, accepted bool) string {
	if accepted {
		return fmt.Sprintf("Заявка #%s принята ✅", esc(offerID))
	}
	return fmt.Sprintf("Заявка #%s отклонена ❌", esc(offerID))
}

func textPendingList(offers []backend.PendingOffer) string {
	if len(offers) == 0 {
		return textNoPending
	}
	var b strings.Builder
	b.WriteString("<b>🧩 Заявки, ожидающие решения</b>\n")
	for _, o := range offers {
		fmt.Fprintf(&b, "\n#%s @%s — %s — %s ₽", esc(o.OfferID.String()), esc(o.Telegram), esc(o.PlanName), format.Number(o.ToPay))
		if created := o.CreatedAt.String(); created != "" {
			fmt.Fprintf(&b, " (%s)", esc(created))
		}
	}
	return b.String()
}
