// Package backend is the JSON/HTTP client of the subscription backend that
// owns users, offers, plans and payment state.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/m3rciful/vpnbot/core/logger"
	"github.com/m3rciful/vpnbot/core/metrics"
	"github.com/m3rciful/vpnbot/core/telegram/netutil"
)

const maxErrorBody = 64 << 10

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// Transport defaults to the pooled transport wrapped with network retries.
	Transport        http.RoundTripper
	TrialErrorPrefix string
	PromoErrorPrefix string
}

// Client calls the subscription backend.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	trialPrefix string
	promoPrefix string
}

// New builds a Client.
func New(opts Options) *Client {
	transport := opts.Transport
	if transport == nil {
		transport = netutil.NewRetryTransport(netutil.PooledTransport(), 2, 500*time.Millisecond)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		token:       opts.Token,
		httpClient:  &http.Client{Timeout: timeout, Transport: transport},
		trialPrefix: opts.TrialErrorPrefix,
		promoPrefix: opts.PromoErrorPrefix,
	}
}

// FindUser returns the account bound to a Telegram id, or nil if none exists.
func (c *Client) FindUser(ctx context.Context, telegramID int64) (*User, error) {
	var u User
	err := c.do(ctx, "find_user", http.MethodGet, "/users/"+strconv.FormatInt(telegramID, 10), nil, &u)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUserByInviteCode returns the owner of a referral code, or nil.
func (c *Client) FindUserByInviteCode(ctx context.Context, code string) (*User, error) {
	var u User
	err := c.do(ctx, "find_user_by_invite", http.MethodGet, "/users/invite/"+url.PathEscape(code), nil, &u)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// RegisterUser creates an account.
func (c *Client) RegisterUser(ctx context.Context, reg Registration) error {
	return c.do(ctx, "register_user", http.MethodPost, "/users", reg, nil)
}

// ServiceConfig fetches the backend presentation config.
func (c *Client) ServiceConfig(ctx context.Context) (*ServiceConfig, error) {
	var cfg ServiceConfig
	if err := c.do(ctx, "service_config", http.MethodGet, "/config", nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Plans lists plans available to the user.
func (c *Client) Plans(ctx context.Context, userID int64) ([]Plan, error) {
	var plans []Plan
	path := "/subscriptions?user_id=" + strconv.FormatInt(userID, 10)
	if err := c.do(ctx, "plans", http.MethodGet, path, nil, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

// CreateOffer submits an offer.
func (c *Client) CreateOffer(ctx context.Context, form OfferForm) (*OfferResult, error) {
	var res OfferResult
	if err := c.do(ctx, "create_offer", http.MethodPost, "/offers", form, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AcceptOffer approves a pending offer.
func (c *Client) AcceptOffer(ctx context.Context, offerID string) error {
	return c.do(ctx, "accept_offer", http.MethodPost, "/offers/"+url.PathEscape(offerID)+"/accept", nil, nil)
}

// RejectOffer withdraws or declines a pending offer.
func (c *Client) RejectOffer(ctx context.Context, offerID string) error {
	return c.do(ctx, "reject_offer", http.MethodPost, "/offers/"+url.PathEscape(offerID)+"/reject", nil, nil)
}

// OfferStatus returns the user's current subscription details.
func (c *Client) OfferStatus(ctx context.Context, userID int64) (*OfferStatus, error) {
	var st OfferStatus
	if err := c.do(ctx, "offer_status", http.MethodGet, "/offers/status/"+strconv.FormatInt(userID, 10), nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// RefreshConnection regenerates the user's connection artifact.
func (c *Client) RefreshConnection(ctx context.Context, userID int64) error {
	return c.do(ctx, "refresh_connection", http.MethodPost, "/users/"+strconv.FormatInt(userID, 10)+"/connection", nil, nil)
}

// PriorPaidOffer returns a prior non-trial offer of the user, or nil.
func (c *Client) PriorPaidOffer(ctx context.Context, userID int64) (*PaidOffer, error) {
	var po PaidOffer
	err := c.do(ctx, "prior_paid_offer", http.MethodGet, "/offers/paid/"+strconv.FormatInt(userID, 10), nil, &po)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &po, nil
}

// PendingOffers lists offers waiting for review.
func (c *Client) PendingOffers(ctx context.Context) ([]PendingOffer, error) {
	var list []PendingOffer
	if err := c.do(ctx, "pending_offers", http.MethodGet, "/offers/pending", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) (err error) {
	start := time.Now()
	status := "fail"
	code := 0
	defer func() {
		metrics.BackendRequests.WithLabelValues(op, status).Inc()
		attrs := []slog.Attr{
			slog.String("status", status),
			slog.String("op", op),
			slog.String("method", method),
			slog.String("path", path),
			slog.Duration("duration", time.Since(start)),
		}
		if code != 0 {
			attrs = append(attrs, slog.Int("http_code", code))
		}
		level := slog.LevelDebug
		if status == "fail" {
			level = slog.LevelWarn
			attrs = append(attrs, logger.Err(err))
		}
		logger.LogEvent(ctx, logger.Backend, level, "request", attrs...)
	}()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return errors.Wrapf(err, "backend %s: encode request", op)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrapf(err, "backend %s: build request", op)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "backend %s", op)
	}
	defer resp.Body.Close()
	code = resp.StatusCode

	if resp.StatusCode == http.StatusNotFound && lookupOps[op] {
		status = "not_found"
		_, _ = io.Copy(io.Discard, resp.Body)
		return errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if de := c.domainError(resp, raw); de != nil {
			status = "domain"
			return classify(de, c.trialPrefix, c.promoPrefix)
		}
		return &StatusError{Op: op, Status: resp.StatusCode}
	}

	if out != nil {
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrapf(err, "backend %s: read response", op)
		}
		raw = bytes.TrimSpace(raw)
		if lookupOps[op] && (len(raw) == 0 || bytes.Equal(raw, []byte("null"))) {
			status = "not_found"
			return errNotFound
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return errors.Wrapf(err, "backend %s: decode response", op)
			}
		}
	}
	status = "ok"
	return nil
}

// domainError recognises refusals carrying a text for the user: a plain text
// body or a bare JSON string. JSON objects are treated as unexpected shapes.
func (c *Client) domainError(resp *http.Response, raw []byte) *DomainError {
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/json" || strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || strings.TrimSpace(s) == "" {
			return nil
		}
		text = strings.TrimSpace(s)
	}
	return &DomainError{Status: resp.StatusCode, Message: text}
}

// lookupOps treat a 404 or an empty/null body as "absent" rather than an error.
var lookupOps = map[string]bool{
	"find_user":           true,
	"find_user_by_invite": true,
	"prior_paid_offer":    true,
}
