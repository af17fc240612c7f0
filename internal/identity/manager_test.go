package identity

import (
	"path/filepath"
	"testing"

	"cashew/internal/crypto"
	"cashew/internal/ledger"
)

func newTestManager(t *testing.T) (*Manager, *ledger.Ledger, crypto.KeyPair) {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	self := crypto.NodeIDFromPublicKey(kp.Public)
	led := ledger.New(ledger.Config{SelfID: self, PrivateKey: kp.Private})
	path := filepath.Join(t.TempDir(), "identity.json")
	return NewManager(path, led, nil), led, kp
}

func TestGenerateWithoutMnemonic(t *testing.T) {
	kp, mnemonic, err := Generate(false)
	if err != nil {
		t.Fatal(err)
	}
	if mnemonic != "" {
		t.Fatalf("expected no mnemonic when not requested")
	}
	if len(kp.Public) == 0 || len(kp.Private) == 0 {
		t.Fatalf("expected a populated keypair")
	}
}

func TestGenerateWithMnemonicIsValid(t *testing.T) {
	_, mnemonic, err := Generate(true)
	if err != nil {
		t.Fatal(err)
	}
	if mnemonic == "" {
		t.Fatalf("expected a mnemonic phrase")
	}
}

func TestSaveLoadRoundTripUnencrypted(t *testing.T) {
	m, _, kp := newTestManager(t)
	if err := m.Save(kp, ""); err != nil {
		t.Fatal(err)
	}
	loaded, err := m.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if string(loaded.Private) != string(kp.Private) {
		t.Fatalf("private key mismatch after round trip")
	}
}

func TestSaveLoadRoundTripEncrypted(t *testing.T) {
	m, _, kp := newTestManager(t)
	if err := m.Save(kp, "correct horse battery staple"); err != nil {
		t.Fatal(err)
	}
	loaded, err := m.Load("correct horse battery staple")
	if err != nil {
		t.Fatal(err)
	}
	if string(loaded.Private) != string(kp.Private) {
		t.Fatalf("private key mismatch after encrypted round trip")
	}
}

func TestLoadEncryptedWithWrongPasswordFails(t *testing.T) {
	m, _, kp := newTestManager(t)
	if err := m.Save(kp, "right-password"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Load("wrong-password"); err == nil {
		t.Fatalf("expected decrypt failure with wrong password")
	}
}

func TestBindHumanEmitsIdentityCreated(t *testing.T) {
	m, led, kp := newTestManager(t)
	humanID := crypto.Sum([]byte("alice"))
	if err := m.BindHuman(humanID, kp, "alice"); err != nil {
		t.Fatal(err)
	}
	events := led.EventsByType(ledger.IdentityCreated)
	if len(events) != 1 {
		t.Fatalf("expected 1 IdentityCreated event, got %d", len(events))
	}
	p, err := ledger.DecodeIdentityCreated(events[0].Payload)
	if err != nil {
		t.Fatal(err)
	}
	if p.HumanID != humanID || p.Label != "alice" {
		t.Fatalf("unexpected decoded payload: %+v", p)
	}
}

func TestRotateEmitsIdentityRotatedWithNewNodeID(t *testing.T) {
	m, led, kp := newTestManager(t)
	humanID := crypto.Sum([]byte("bob"))
	oldNodeID := crypto.NodeIDFromPublicKey(kp.Public)

	newKP, err := m.Rotate(humanID, "", 5000)
	if err != nil {
		t.Fatal(err)
	}
	events := led.EventsByType(ledger.IdentityRotated)
	if len(events) != 1 {
		t.Fatalf("expected 1 IdentityRotated event, got %d", len(events))
	}
	p, err := ledger.DecodeIdentityRotated(events[0].Payload)
	if err != nil {
		t.Fatal(err)
	}
	if p.HumanID != humanID {
		t.Fatalf("humanID mismatch")
	}
	newNodeID := crypto.NodeIDFromPublicKey(newKP.Public)
	if p.NewNodeID != newNodeID {
		t.Fatalf("rotated payload NodeID does not match the freshly generated key")
	}
	if newNodeID == oldNodeID {
		t.Fatalf("expected rotation to produce a distinct NodeID")
	}

	reloaded, err := m.Load("")
	if err != nil {
		t.Fatal(err)
	}
	if string(reloaded.Private) != string(newKP.Private) {
		t.Fatalf("expected the rotated key to have been persisted")
	}
}

func TestRevokeHumanEmitsIdentityRevoked(t *testing.T) {
	m, led, _ := newTestManager(t)
	humanID := crypto.Sum([]byte("carol"))
	if err := m.RevokeHuman(humanID, "compromised"); err != nil {
		t.Fatal(err)
	}
	events := led.EventsByType(ledger.IdentityRevoked)
	if len(events) != 1 {
		t.Fatalf("expected 1 IdentityRevoked event, got %d", len(events))
	}
	p, err := ledger.DecodeIdentityRevoked(events[0].Payload)
	if err != nil {
		t.Fatal(err)
	}
	if p.HumanID != humanID || p.Reason != "compromised" {
		t.Fatalf("unexpected decoded payload: %+v", p)
	}
}
