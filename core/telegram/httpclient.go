package telegram

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/vpnbot/core/config"
	"github.com/m3rciful/vpnbot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

const defaultPollTimeout = 10 * time.Second

// BuildHTTPClient returns the client telebot uses for Bot API calls. Calls
// that fail before a response is received are retried twice more.
func BuildHTTPClient() *http.Client {
	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: netutil.NewRetryTransport(netutil.PooledTransport(), 2, 2*time.Second),
	}
}

// WebhookOptions declares webhook listener settings.
type WebhookOptions struct {
	Listen string
	Port   int
	URL    string
}

// PollerOptions configures BuildPoller.
type PollerOptions struct {
	RunMode                string
	LongPollTimeoutSeconds int
	Webhook                WebhookOptions
}

// BuildPoller returns a webhook listener in webhook mode and a long poller
// otherwise.
func BuildPoller(opts PollerOptions) tele.Poller {
	if strings.EqualFold(strings.TrimSpace(opts.RunMode), coreconfig.RunModeWebhook) {
		return &tele.Webhook{
			Listen:   fmt.Sprintf("%s:%d", opts.Webhook.Listen, opts.Webhook.Port),
			Endpoint: &tele.WebhookEndpoint{PublicURL: opts.Webhook.URL},
		}
	}
	timeout := defaultPollTimeout
	if opts.LongPollTimeoutSeconds > 0 {
		timeout = time.Duration(opts.LongPollTimeoutSeconds) * time.Second
	}
	return &tele.LongPoller{Timeout: timeout}
}
