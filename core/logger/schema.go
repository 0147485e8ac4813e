package logger

import "strings"

// Closed vocabularies of the status and outcome fields. Unknown statuses are
// written as given; unknown outcomes are dropped.
var (
	statuses = vocabulary("ok", "fail", "skip", "retry", "denied", "rate_limited", "cancelled")
	outcomes = vocabulary("ok", "fail", "cancelled", "rate_limited",
		"activated", "payment_required", "trial_used", "confirmed", "promo_rejected")
)

// defaultKeyOrder leads every line; remaining keys follow alphabetically.
var defaultKeyOrder = strings.Fields(`
	ts level component event status rid rid_full ts_unix_nano
	update_id user_id chat_id chat_type handler intent stage gate op cb_key outcome plan_id offer_id
	duration_ms elapsed_ms wait_ms messages kb count payload lang username
	mode listen public_url method path http_code request_id db.host db.port db.name
	err err_code retryable attempts backoff_ms
`)

func vocabulary(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func canonical(vocab map[string]bool, v string) (string, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	return v, vocab[v]
}
