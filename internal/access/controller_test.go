package access

import (
	"testing"

	"cashew/internal/crypto"
	"cashew/internal/ledger"
	"cashew/internal/state"
)

func newTestController(t *testing.T) (*Controller, *ledger.Ledger, *state.Projector, crypto.KeyPair) {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	self := crypto.NodeIDFromPublicKey(kp.Public)
	led := ledger.New(ledger.Config{SelfID: self, PrivateKey: kp.Private})
	st := state.New(led, nil)
	return NewController(st, nil), led, st, kp
}

func TestCheckAccessDeniesInsufficientKeys(t *testing.T) {
	c, _, _, kp := newTestController(t)
	self := crypto.NodeIDFromPublicKey(kp.Public)
	d := c.CheckAccess(Request{Node: self, Capability: CapHostThings})
	if d.Allowed {
		t.Fatalf("expected denial before any SERVICE key is issued")
	}
}

func TestCheckAccessAllowsAfterKeyIssued(t *testing.T) {
	c, led, st, kp := newTestController(t)
	self := crypto.NodeIDFromPublicKey(kp.Public)
	if _, err := led.AppendLocal(ledger.KeyIssued, ledger.KeyIssuancePayload{
		KeyType: ledger.KeyService, Count: 1, Method: ledger.MethodPow,
	}.Encode()); err != nil {
		t.Fatal(err)
	}
	st.Rebuild()

	d := c.CheckAccess(Request{Node: self, Capability: CapHostThings})
	if !d.Allowed {
		t.Fatalf("expected allow after SERVICE key issuance, got deny: %s", d.Reason)
	}
}

func TestCheckAccessDeniesInactiveNode(t *testing.T) {
	c, led, st, kp := newTestController(t)
	self := crypto.NodeIDFromPublicKey(kp.Public)
	if _, err := led.AppendLocal(ledger.NodeJoined, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := led.AppendLocal(ledger.NodeLeft, nil); err != nil {
		t.Fatal(err)
	}
	st.Rebuild()
	d := c.CheckAccess(Request{Node: self, Capability: CapViewContent})
	if d.Allowed {
		t.Fatalf("expected denial for a node that left")
	}
}

func TestCheckAccessRequiresFounderRole(t *testing.T) {
	c, led, st, kp := newTestController(t)
	self := crypto.NodeIDFromPublicKey(kp.Public)
	networkID := crypto.Hash{0x5}
	if _, err := led.AppendLocal(ledger.NetworkCreated, ledger.NetworkCreatedPayload{
		NetworkID: networkID, ThingHash: crypto.Hash{0x6}, Founder: self,
		MinQuorum: 3, Target: 5, MaxQuorum: 10,
	}.Encode()); err != nil {
		t.Fatal(err)
	}
	if _, err := led.AppendLocal(ledger.NetworkMemberAdded, ledger.NetworkMembershipPayload{
		NetworkID: networkID, Member: self, Role: "FOUNDER",
	}.Encode()); err != nil {
		t.Fatal(err)
	}
	st.Rebuild()
	d := c.CheckAccess(Request{Node: self, Capability: CapDisbandNetwork, NetworkID: networkID})
	if !d.Allowed {
		t.Fatalf("expected founder to be allowed to disband, got: %s", d.Reason)
	}

	other, _ := crypto.GenerateKeyPair()
	otherID := crypto.NodeIDFromPublicKey(other.Public)
	if _, err := led.AppendLocal(ledger.NodeJoined, nil); err != nil {
		t.Fatal(err)
	}
	d = c.CheckAccess(Request{Node: otherID, Capability: CapDisbandNetwork, NetworkID: networkID})
	if d.Allowed {
		t.Fatalf("expected non-founder to be denied disband")
	}
}

func TestIssueAndVerifyTokenRoundTrips(t *testing.T) {
	c, _, _, kp := newTestController(t)
	self := crypto.NodeIDFromPublicKey(kp.Public)
	tok := c.IssueToken(self, CapViewContent, []byte("ctx"), 1000, kp.Private)
	if err := c.VerifyToken(tok, kp.Public, 1500); err != nil {
		t.Fatal(err)
	}
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	c, _, _, kp := newTestController(t)
	self := crypto.NodeIDFromPublicKey(kp.Public)
	tok := c.IssueToken(self, CapViewContent, nil, 1000, kp.Private)
	if err := c.VerifyToken(tok, kp.Public, 1000+tokenTTLSeconds+1); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestVerifyTokenRejectsTamperedSignature(t *testing.T) {
	c, _, _, kp := newTestController(t)
	self := crypto.NodeIDFromPublicKey(kp.Public)
	tok := c.IssueToken(self, CapViewContent, nil, 1000, kp.Private)
	tok.Signature[0] ^= 0xFF
	if err := c.VerifyToken(tok, kp.Public, 1001); err == nil {
		t.Fatalf("expected signature verification to fail")
	}
}

func TestVerifyTokenRejectsRevoked(t *testing.T) {
	c, _, _, kp := newTestController(t)
	self := crypto.NodeIDFromPublicKey(kp.Public)
	tok := c.IssueToken(self, CapHostThings, []byte("ctx"), 1000, kp.Private)

	if _, err := c.Revocations().Revoke(self, CapHostThings, "abuse", 1200, self, []byte("ctx"), kp.Private); err != nil {
		t.Fatal(err)
	}
	if err := c.VerifyToken(tok, kp.Public, 1300); err == nil {
		t.Fatalf("expected revoked token to fail verification")
	}
}

func TestVerifyTokenAcceptsTokenIssuedAfterRevocation(t *testing.T) {
	c, _, _, kp := newTestController(t)
	self := crypto.NodeIDFromPublicKey(kp.Public)
	if _, err := c.Revocations().Revoke(self, CapHostThings, "abuse", 1000, self, []byte("ctx"), kp.Private); err != nil {
		t.Fatal(err)
	}
	tok := c.IssueToken(self, CapHostThings, []byte("ctx"), 1100, kp.Private)
	if err := c.VerifyToken(tok, kp.Public, 1200); err != nil {
		t.Fatalf("expected token issued after revocation to verify, got: %v", err)
	}
}

func TestRevocationListEnforcesPerNodeCap(t *testing.T) {
	r := NewRevocationList()
	kp, _ := crypto.GenerateKeyPair()
	self := crypto.NodeIDFromPublicKey(kp.Public)
	for i := 0; i < maxActiveRevocationsPerNode; i++ {
		ctx := []byte{byte(i)}
		if _, err := r.Revoke(self, CapViewContent, "test", int64(1000+i), self, ctx, kp.Private); err != nil {
			t.Fatalf("revoke %d: %v", i, err)
		}
	}
	if _, err := r.Revoke(self, CapViewContent, "test", 2000, self, []byte("overflow"), kp.Private); err == nil {
		t.Fatalf("expected cap enforcement at %d active revocations", maxActiveRevocationsPerNode)
	}
}

func TestRevocationListPruneExpired(t *testing.T) {
	r := NewRevocationList()
	kp, _ := crypto.GenerateKeyPair()
	self := crypto.NodeIDFromPublicKey(kp.Public)
	if _, err := r.Revoke(self, CapViewContent, "test", 1000, self, nil, kp.Private); err != nil {
		t.Fatal(err)
	}
	if n := r.PruneExpired(1000 + revocationExpirySeconds - 1); n != 0 {
		t.Fatalf("expected no pruning before expiry, got %d", n)
	}
	if n := r.PruneExpired(1000 + revocationExpirySeconds + 1); n != 1 {
		t.Fatalf("expected 1 pruned after expiry, got %d", n)
	}
}
