package gateway

import (
	"testing"
	"time"

	"cashew/internal/access"
	"cashew/internal/crypto"
)

func TestSessionStoreCreateAndGet(t *testing.T) {
	store := newSessionStore(time.Minute)
	now := time.Now()
	sess := store.createAnonymous(now)

	got, ok := store.get(sess.ID, now)
	if !ok {
		t.Fatal("expected to find the session immediately after creation")
	}
	if !got.Allows(access.CapViewContent) {
		t.Fatal("expected an anonymous session to allow VIEW_CONTENT")
	}
	if got.Allows(access.CapHostThings) {
		t.Fatal("anonymous session must not allow HOST_THINGS")
	}
}

func TestSessionStoreExpiresAfterTTL(t *testing.T) {
	store := newSessionStore(time.Minute)
	now := time.Now()
	sess := store.createAnonymous(now)

	later := now.Add(2 * time.Minute)
	if _, ok := store.get(sess.ID, later); ok {
		t.Fatal("expected the session to have expired")
	}
}

func TestSessionStoreSweepRemovesExpired(t *testing.T) {
	store := newSessionStore(time.Minute)
	now := time.Now()
	store.createAnonymous(now)
	store.createAuthenticated(crypto.Sum([]byte("node")), map[access.Capability]struct{}{access.CapViewContent: {}}, now)

	removed := store.sweep(now.Add(2 * time.Minute))
	if removed != 2 {
		t.Fatalf("expected both sessions swept, got %d", removed)
	}
	active, _, _ := store.counts()
	if active != 0 {
		t.Fatalf("expected zero active sessions after sweep, got %d", active)
	}
}

func TestSessionStoreCounts(t *testing.T) {
	store := newSessionStore(time.Minute)
	now := time.Now()
	store.createAnonymous(now)
	store.createAuthenticated(crypto.Sum([]byte("node")), map[access.Capability]struct{}{access.CapHostThings: {}}, now)

	active, anon, auth := store.counts()
	if active != 2 || anon != 1 || auth != 1 {
		t.Fatalf("expected 2/1/1, got %d/%d/%d", active, anon, auth)
	}
}
