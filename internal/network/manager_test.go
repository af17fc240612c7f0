package network

import (
	"os"
	"testing"

	"cashew/internal/crypto"
	"cashew/internal/ledger"
	"cashew/internal/state"
)

func newTestManager(t *testing.T) (*Manager, *ledger.Ledger, *state.Projector, crypto.KeyPair) {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	id := crypto.NodeIDFromPublicKey(kp.Public)
	led := ledger.New(ledger.Config{SelfID: id, PrivateKey: kp.Private})
	st := state.New(led, nil)
	return New(led, st, nil), led, st, kp
}

func TestCreateNetworkAddsFounderAsMember(t *testing.T) {
	m, _, st, kp := newTestManager(t)
	self := crypto.NodeIDFromPublicKey(kp.Public)
	networkID := crypto.Hash{0x01}
	thingHash := crypto.Hash{0x02}

	if _, err := m.CreateNetwork(networkID, thingHash, self, state.DefaultQuorum()); err != nil {
		t.Fatal(err)
	}
	st.Rebuild()

	net, ok := st.NetworkState(networkID)
	if !ok {
		t.Fatalf("expected network to exist")
	}
	if _, ok := net.Members[self]; !ok {
		t.Fatalf("expected founder to be a member")
	}
	if net.MemberRoles[self] != state.RoleFounder {
		t.Fatalf("expected founder role, got %s", net.MemberRoles[self])
	}
}

func TestCreateNetworkRejectsInvalidQuorum(t *testing.T) {
	m, _, _, kp := newTestManager(t)
	self := crypto.NodeIDFromPublicKey(kp.Public)
	if _, err := m.CreateNetwork(crypto.Hash{0x01}, crypto.Hash{0x02}, self, state.Quorum{Min: 1, Target: 2, Max: 2}); err == nil {
		t.Fatalf("expected error for quorum below minNetworkQuorum")
	}
}

func TestInviteRequiresMembership(t *testing.T) {
	m, _, st, kp := newTestManager(t)
	self := crypto.NodeIDFromPublicKey(kp.Public)
	networkID := crypto.Hash{0x01}
	if _, err := m.CreateNetwork(networkID, crypto.Hash{0x02}, self, state.DefaultQuorum()); err != nil {
		t.Fatal(err)
	}
	st.Rebuild()

	outsiderKP, _ := crypto.GenerateKeyPair()
	outsider := crypto.NodeIDFromPublicKey(outsiderKP.Public)
	inviteeKP, _ := crypto.GenerateKeyPair()
	invitee := crypto.NodeIDFromPublicKey(inviteeKP.Public)

	if _, err := m.Invite(networkID, outsider, invitee, "FULL", 1000, outsiderKP.Private); err == nil {
		t.Fatalf("expected error: outsider has no invite privilege")
	}
}

func TestInviteAndAcceptAddsMember(t *testing.T) {
	m, _, st, kp := newTestManager(t)
	self := crypto.NodeIDFromPublicKey(kp.Public)
	networkID := crypto.Hash{0x01}
	if _, err := m.CreateNetwork(networkID, crypto.Hash{0x02}, self, state.DefaultQuorum()); err != nil {
		t.Fatal(err)
	}
	st.Rebuild()

	inviteeKP, _ := crypto.GenerateKeyPair()
	invitee := crypto.NodeIDFromPublicKey(inviteeKP.Public)

	inv, err := m.Invite(networkID, self, invitee, "FULL", 1000, kp.Private)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Accept(inv, kp.Public, 2000); err != nil {
		t.Fatal(err)
	}
	st.Rebuild()

	net, _ := st.NetworkState(networkID)
	if _, ok := net.Members[invitee]; !ok {
		t.Fatalf("expected invitee to become a member after accept")
	}
}

func TestAcceptRejectsExpiredInvitation(t *testing.T) {
	m, _, st, kp := newTestManager(t)
	self := crypto.NodeIDFromPublicKey(kp.Public)
	networkID := crypto.Hash{0x01}
	if _, err := m.CreateNetwork(networkID, crypto.Hash{0x02}, self, state.DefaultQuorum()); err != nil {
		t.Fatal(err)
	}
	st.Rebuild()

	inviteeKP, _ := crypto.GenerateKeyPair()
	invitee := crypto.NodeIDFromPublicKey(inviteeKP.Public)
	inv, err := m.Invite(networkID, self, invitee, "FULL", 1000, kp.Private)
	if err != nil {
		t.Fatal(err)
	}

	farFuture := int64(1000 + invitationTTL + 1)
	if _, err := m.Accept(inv, kp.Public, farFuture); err == nil {
		t.Fatalf("expected expiry error")
	}
}

func TestRemoveMemberAndDisband(t *testing.T) {
	m, _, st, kp := newTestManager(t)
	self := crypto.NodeIDFromPublicKey(kp.Public)
	networkID := crypto.Hash{0x01}
	if _, err := m.CreateNetwork(networkID, crypto.Hash{0x02}, self, state.DefaultQuorum()); err != nil {
		t.Fatal(err)
	}
	st.Rebuild()

	inviteeKP, _ := crypto.GenerateKeyPair()
	invitee := crypto.NodeIDFromPublicKey(inviteeKP.Public)
	inv, err := m.Invite(networkID, self, invitee, "FULL", 1000, kp.Private)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Accept(inv, kp.Public, 2000); err != nil {
		t.Fatal(err)
	}
	st.Rebuild()

	if _, err := m.RemoveMember(networkID, invitee, "voluntary_leave"); err != nil {
		t.Fatal(err)
	}
	st.Rebuild()
	net, _ := st.NetworkState(networkID)
	if _, ok := net.Members[invitee]; ok {
		t.Fatalf("expected member to be removed")
	}

	if _, err := m.Disband(networkID, "founder_initiated"); err != nil {
		t.Fatal(err)
	}
	st.Rebuild()
	net, _ = st.NetworkState(networkID)
	if net.IsActive {
		t.Fatalf("expected network to be inactive after disband")
	}
}

func TestHealthClassification(t *testing.T) {
	m, _, st, kp := newTestManager(t)
	self := crypto.NodeIDFromPublicKey(kp.Public)
	networkID := crypto.Hash{0x01}
	q := state.Quorum{Min: 3, Target: 5, Max: 10}
	if _, err := m.CreateNetwork(networkID, crypto.Hash{0x02}, self, q); err != nil {
		t.Fatal(err)
	}
	st.Rebuild()

	h, err := m.Health(networkID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if h != HealthCritical {
		t.Fatalf("expected CRITICAL below min, got %s", h)
	}
	h, _ = m.Health(networkID, 4)
	if h != HealthDegraded {
		t.Fatalf("expected DEGRADED between min and target, got %s", h)
	}
	h, _ = m.Health(networkID, 6)
	if h != HealthHealthy {
		t.Fatalf("expected HEALTHY above target, got %s", h)
	}
}

func TestPersistAndLoadNetworkFile(t *testing.T) {
	m, _, st, kp := newTestManager(t)
	self := crypto.NodeIDFromPublicKey(kp.Public)
	networkID := crypto.Hash{0x01}
	if _, err := m.CreateNetwork(networkID, crypto.Hash{0x02}, self, state.DefaultQuorum()); err != nil {
		t.Fatal(err)
	}
	st.Rebuild()

	dir, err := os.MkdirTemp("", "cashew-network-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	net, _ := st.NetworkState(networkID)
	if err := PersistNetwork(dir, net); err != nil {
		t.Fatal(err)
	}
	nf, err := LoadNetworkFile(dir, networkID.String())
	if err != nil {
		t.Fatal(err)
	}
	if nf.NetworkID != networkID.String() {
		t.Fatalf("expected network id to round-trip, got %s", nf.NetworkID)
	}
	if len(nf.Members) != 1 {
		t.Fatalf("expected 1 member persisted, got %d", len(nf.Members))
	}
}
