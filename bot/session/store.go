package session

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/m3rciful/vpnbot/bot/menu"
	"github.com/m3rciful/vpnbot/core/clock"
	"github.com/m3rciful/vpnbot/core/metrics"
)

// ErrSessionExists is returned by Create for a user that already has a session.
var ErrSessionExists = errors.New("session: already exists")

// Init carries the fields a new session starts with.
type Init struct {
	Handle string
}

type entry struct {
	mu   sync.Mutex
	sess *Session
}

// Store keeps sessions in memory for the process lifetime. Events of one
// user are serialised by Lock; different users proceed in parallel.
type Store struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[int64]*entry
	live    int
}

// NewStore returns an empty store; gates of its sessions read time from c.
func NewStore(c clock.Clock) *Store {
	if c == nil {
		c = clock.NewRealClock()
	}
	return &Store{clock: c, entries: make(map[int64]*entry)}
}

func (s *Store) entry(userID int64) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		e = &entry{}
		s.entries[userID] = e
	}
	return e
}

// Lock acquires the per-user lock and returns its release function.
// Get, Create and every session mutation must happen while it is held.
func (s *Store) Lock(userID int64) (unlock func()) {
	e := s.entry(userID)
	e.mu.Lock()
	return e.mu.Unlock
}

// Get returns the session of userID, or nil.
func (s *Store) Get(userID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[userID]; ok {
		return e.sess
	}
	return nil
}

// Create installs a fresh Browsing session with the main menu attached.
func (s *Store) Create(userID int64, init Init) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[userID]
	if !ok {
		e = &entry{}
		s.entries[userID] = e
	}
	if e.sess != nil {
		return nil, errors.Wrapf(ErrSessionExists, "user %d", userID)
	}
	e.sess = &Session{
		UserID:  userID,
		Handle:  init.Handle,
		Replies: menu.MainMenu(),
		Gate:    NewGate(s.clock),
	}
	s.live++
	metrics.Sessions.Set(float64(s.live))
	return e.sess, nil
}

// Reset returns sess to Browsing with the main menu. Calling it twice is harmless.
func (s *Store) Reset(sess *Session) {
	if sess != nil {
		sess.reset()
	}
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}
