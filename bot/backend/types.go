package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexString decodes a JSON string or number into its textual form.
// The backend is not consistent about ids and dates.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*s = FlexString(n.String())
	return nil
}

// String returns the raw value.
func (s FlexString) String() string { return string(s) }

// Int64 parses the value as an integer; non-numeric values yield 0.
func (s FlexString) Int64() int64 {
	n, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// User is a registered account.
type User struct {
	TelegramID int64  `json:"telegram_id"`
	Telegram   string `json:"telegram"`
	Nickname   string `json:"nickname"`
	InviteCode string `json:"invite_code,omitempty"`
}

// Registration is the payload of registerUser.
type Registration struct {
	Telegram        string `json:"telegram"`
	Nickname        string `json:"nickname"`
	TelegramID      int64  `json:"telegram_id"`
	InvitedWithCode string `json:"invited_with_code,omitempty"`
}

// ServiceConfig is the backend-owned presentation config.
type ServiceConfig struct {
	WelcomeMessage     string  `json:"welcome_message"`
	InviteDiscount     float64 `json:"invite_discount"`
	ForInvitedDiscount float64 `json:"for_invited_discount"`
}

// Plan is a purchasable subscription tier.
type Plan struct {
	ID    string `json:"name_id"`
	Title string `json:"title"`
	// DateLimit is the plan duration in seconds.
	DateLimit int64 `json:"date_limit"`
	// DataLimit is the monthly traffic in GB; 0 means unlimited.
	DataLimit float64 `json:"data_limit"`
	Price     float64 `json:"price"`
	WithPromo bool    `json:"with_promo"`
}

// OfferForm is the createOffer payload.
type OfferForm struct {
	PlanID    string `json:"sub_id"`
	UserID    int64  `json:"user_id"`
	PromoCode string `json:"promo_id,omitempty"`
}

// OfferResult is the createOffer answer: either Connection is set
// (immediate activation) or the priced fields describe a pending offer.
type OfferResult struct {
	Connection string     `json:"connection"`
	OfferID    FlexString `json:"offerId"`
	PlanName   string     `json:"subname"`
	Price      float64    `json:"price"`
	Discount   float64    `json:"discount"`
	PromoName  string     `json:"promoName"`
	ToPay      float64    `json:"toPay"`
}

// Activated reports whether the offer came back with a connection artifact.
func (r OfferResult) Activated() bool { return r.Connection != "" }

// OfferStatus describes the user's current subscription.
type OfferStatus struct {
	Connection      string     `json:"connString"`
	PlanName        string     `json:"subName"`
	TrafficLimitGB  float64    `json:"subDataGBLimit"`
	DateLimit       FlexString `json:"subDateLimit"`
	IsExpired       bool       `json:"isExpired"`
	UsedTraffic     int64      `json:"usedTraffic"`
	CreatedDate     FlexString `json:"createdDate"`
	LimitRecounted  bool       `json:"limitDiffrence"`
	Price           float64    `json:"price"`
	InviteCode      string     `json:"inviteCode"`
	UserInviteCount int        `json:"userInviteCount"`
	NextPayDiscount float64    `json:"nextPayDiscount"`
}

// PaidOffer is a prior non-trial offer of a user.
type PaidOffer struct {
	OfferID  FlexString `json:"id"`
	PlanID   string     `json:"sub_id"`
	PlanName string     `json:"subname"`
}

// PendingOffer is an offer waiting for the administrator's decision.
type PendingOffer struct {
	OfferID   FlexString `json:"id"`
	UserID    int64      `json:"user_id"`
	Telegram  string     `json:"telegram"`
	PlanName  string     `json:"subname"`
	ToPay     float64    `json:"toPay"`
	CreatedAt FlexString `json:"createdDate"`
}
