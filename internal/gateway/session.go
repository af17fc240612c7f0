package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"cashew/internal/access"
	"cashew/internal/crypto"
)

// Session mirrors the original GatewaySession
// (include/cashew/gateway/gateway_server.hpp): an anonymous session can
// always read; an authenticated one additionally carries the capability
// set granted to its node by POST /api/auth.
type Session struct {
	ID           string
	Node         crypto.Hash
	Anonymous    bool
	Capabilities map[access.Capability]struct{}
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
}

// Allows reports whether the session carries cap. Anonymous sessions only
// ever carry capabilities with no requirements (VIEW_CONTENT,
// DISCOVER_NETWORKS, RELAY_TRAFFIC), per spec §4.3's zero-requirement rows.
func (s *Session) Allows(cap access.Capability) bool {
	_, ok := s.Capabilities[cap]
	return ok
}

// sessionStore is the mutex-guarded session table, keyed by session ID,
// with expiry enforced both lazily on Get and by a periodic Sweep.
// Grounded on the original's sessions_mutex_/sessions_ pair.
type sessionStore struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]*Session
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{ttl: ttl, m: make(map[string]*Session)}
}

func (s *sessionStore) createAnonymous(now time.Time) *Session {
	sess := &Session{
		ID:           uuid.NewString(),
		Anonymous:    true,
		Capabilities: map[access.Capability]struct{}{access.CapViewContent: {}, access.CapDiscoverNetworks: {}, access.CapRelayTraffic: {}},
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.ttl),
	}
	s.mu.Lock()
	s.m[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

func (s *sessionStore) createAuthenticated(node crypto.Hash, caps map[access.Capability]struct{}, now time.Time) *Session {
	sess := &Session{
		ID:           uuid.NewString(),
		Node:         node,
		Capabilities: caps,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.ttl),
	}
	s.mu.Lock()
	s.m[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// get returns the session for id if it exists and has not expired as of
// now, touching its LastActivity.
func (s *sessionStore) get(id string, now time.Time) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[id]
	if !ok {
		return nil, false
	}
	if now.After(sess.ExpiresAt) {
		delete(s.m, id)
		return nil, false
	}
	sess.LastActivity = now
	return sess, true
}

// sweep evicts every session expired as of now, returning how many were
// removed.
func (s *sessionStore) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.m {
		if now.After(sess.ExpiresAt) {
			delete(s.m, id)
			n++
		}
	}
	return n
}

// counts reports {active, anonymous, authenticated}, mirroring the
// original's Statistics.{active,anonymous,authenticated}_sessions.
func (s *sessionStore) counts() (active, anon, auth int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.m {
		active++
		if sess.Anonymous {
			anon++
		} else {
			auth++
		}
	}
	return
}
