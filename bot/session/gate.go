package session

import (
	"sync"
	"time"

	"github.com/m3rciful/vpnbot/core/clock"
)

// Gate names.
const (
	GateNewOffer  = "new-offer"
	GateUpdateQR  = "update-qrcode"
	GateOfferInfo = "offer-info"
)

// Gate tracks named cooldowns. Checking never arms: callers that consult
// several gates arm only the one they act on.
type Gate struct {
	clock  clock.Clock
	mu     sync.Mutex
	expiry map[string]time.Time
}

// NewGate returns an empty gate reading time from c.
func NewGate(c clock.Clock) *Gate {
	if c == nil {
		c = clock.NewRealClock()
	}
	return &Gate{clock: c, expiry: make(map[string]time.Time)}
}

// Allowed reports whether action has no armed expiry in the future.
func (g *Gate) Allowed(action string) bool {
	return g.Remaining(action) == 0
}

// Arm blocks action for d from now, replacing any earlier expiry.
func (g *Gate) Arm(action string, d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expiry[action] = g.clock.Now().Add(d)
}

// Remaining returns how long action stays blocked; 0 when allowed.
func (g *Gate) Remaining(action string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	until, ok := g.expiry[action]
	if !ok {
		return 0
	}
	if left := until.Sub(g.clock.Now()); left > 0 {
		return left
	}
	return 0
}
