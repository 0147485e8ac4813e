// Package netutil holds the outbound HTTP plumbing shared by the Telegram
// and backend clients.
package netutil

import (
	"errors"
	"net"
	"net/http"
	"time"
)

// ShouldRetry reports whether err is a transient dial or timeout failure.
// Any error in the chain counts, so url.Error and net.OpError wrappers are
// looked through.
func ShouldRetry(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// ShouldRetryRequest narrows ShouldRetry by method. A timeout may fire after
// the request reached the server, so only idempotent methods retry on it;
// other methods retry only when the dial failed.
func ShouldRetryRequest(req *http.Request, err error) bool {
	if req == nil || err == nil {
		return false
	}
	if idempotent(req.Method) {
		return ShouldRetry(err)
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func idempotent(method string) bool {
	switch method {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// RetryTransport retries requests that failed before a response was received.
// Requests with a body are retried only when GetBody is set. Non-idempotent
// methods are retried only on dial failures.
type RetryTransport struct {
	Base       http.RoundTripper
	MaxRetries int
	Backoff    time.Duration
	// OnRetry, when set, observes every retry before the backoff wait.
	OnRetry func(req *http.Request, attempt int, err error)
}

// NewRetryTransport wraps base with linear backoff retries.
func NewRetryTransport(base http.RoundTripper, maxRetries int, backoff time.Duration) *RetryTransport {
	return &RetryTransport{Base: base, MaxRetries: maxRetries, Backoff: backoff}
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= t.MaxRetries && ShouldRetryRequest(req, err); attempt++ {
		next, rerr := rewind(req)
		if rerr != nil || next == nil {
			break
		}
		if t.OnRetry != nil {
			t.OnRetry(req, attempt, err)
		}
		if werr := wait(req, t.Backoff*time.Duration(attempt)); werr != nil {
			return nil, werr
		}
		resp, err = base.RoundTrip(next)
	}
	return resp, err
}

// rewind clones req for another attempt. It returns nil when the body cannot
// be replayed.
func rewind(req *http.Request) (*http.Request, error) {
	next := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return next, nil
	}
	if req.GetBody == nil {
		return nil, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	next.Body = body
	return next, nil
}

func wait(req *http.Request, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-req.Context().Done():
		return req.Context().Err()
	case <-t.C:
		return nil
	}
}
