// Package identity implements the local node's identity-file lifecycle
// and the HumanID<->NodeID binding (SPEC_FULL.md §C.1/§C.2): generate,
// load, optionally password-encrypt, and rotate a local Ed25519 identity.
// Grounded on core/wallet.go's HDWallet generation/import flow (entropy ->
// bip39 mnemonic -> seed) for the optional mnemonic backup phrase, and on
// internal/crypto's ChaCha20-Poly1305/BLAKE3 primitives for at-rest
// encryption.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	bip39 "github.com/tyler-smith/go-bip39"

	"cashew/internal/crypto"
	"cashew/internal/ledger"
)

const entropyBits = 128 // 12-word mnemonic

// Identity is a loaded local Ed25519 keypair plus its derived NodeID.
type Identity struct {
	NodeID  crypto.Hash
	KeyPair crypto.KeyPair
}

// fileFormat is the on-disk JSON shape of the identity file. When
// Encrypted is true, PrivateKey holds the ChaCha20-Poly1305 ciphertext of
// the Ed25519 private key rather than the key itself.
type fileFormat struct {
	PublicKey  []byte `json:"public_key"`
	PrivateKey []byte `json:"private_key"`
	Encrypted  bool   `json:"encrypted"`
}

// Manager owns the identity file at path and the ledger event that binds
// it to a HumanID.
type Manager struct {
	path string
	led  *ledger.Ledger
	log  *logrus.Logger
}

func NewManager(path string, led *ledger.Ledger, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{path: path, led: led, log: log}
}

// Generate creates a fresh Ed25519 identity, optionally returning a BIP-39
// mnemonic backup phrase derived independently of the signing key itself
// (the mnemonic comes from fresh entropy, seeds nothing here and does not
// encode the key, so the key cannot be restored from it; the entropy and
// mnemonic calls follow core/wallet.go's NewRandomWallet idiom).
func Generate(withMnemonic bool) (crypto.KeyPair, string, error) {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return crypto.KeyPair{}, "", fmt.Errorf("identity: generate: %w", err)
	}
	if !withMnemonic {
		return kp, "", nil
	}
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return kp, "", fmt.Errorf("identity: mnemonic entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return kp, "", fmt.Errorf("identity: mnemonic: %w", err)
	}
	return kp, mnemonic, nil
}

// Save persists kp to m.path as JSON, optionally encrypting the private
// key under BLAKE3(password) via ChaCha20-Poly1305.
func (m *Manager) Save(kp crypto.KeyPair, password string) error {
	ff := fileFormat{PublicKey: kp.Public}
	if password == "" {
		ff.PrivateKey = kp.Private
	} else {
		key := crypto.DeriveKeyFromPassword(password)
		ct, err := crypto.Encrypt(key, kp.Private)
		if err != nil {
			return fmt.Errorf("identity: encrypt: %w", err)
		}
		ff.PrivateKey = ct
		ff.Encrypted = true
	}
	b, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return fmt.Errorf("identity: mkdir: %w", err)
	}
	if err := os.WriteFile(m.path, b, 0o600); err != nil {
		return fmt.Errorf("identity: write: %w", err)
	}
	return nil
}

// Load reads and decrypts (if needed) the identity file at m.path.
func (m *Manager) Load(password string) (crypto.KeyPair, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return crypto.KeyPair{}, fmt.Errorf("identity: read: %w", err)
	}
	var ff fileFormat
	if err := json.Unmarshal(b, &ff); err != nil {
		return crypto.KeyPair{}, fmt.Errorf("identity: unmarshal: %w", err)
	}
	priv := ff.PrivateKey
	if ff.Encrypted {
		key := crypto.DeriveKeyFromPassword(password)
		pt, err := crypto.Decrypt(key, ff.PrivateKey)
		if err != nil {
			return crypto.KeyPair{}, fmt.Errorf("identity: decrypt (wrong password?): %w", err)
		}
		priv = pt
	}
	return crypto.KeyPair{Public: ff.PublicKey, Private: priv}, nil
}

// Rotate generates a fresh Ed25519 identity, persists it, and emits
// IDENTITY_ROTATED binding humanID to the new NodeID.
func (m *Manager) Rotate(humanID crypto.Hash, password string, at int64) (crypto.KeyPair, error) {
	kp, _, err := Generate(false)
	if err != nil {
		return kp, err
	}
	if err := m.Save(kp, password); err != nil {
		return kp, err
	}
	newNodeID := crypto.NodeIDFromPublicKey(kp.Public)
	if _, err := m.led.AppendLocal(ledger.IdentityRotated, ledger.IdentityRotatedPayload{
		HumanID: humanID, NewNodeID: newNodeID, NewPublicKey: kp.Public,
	}.Encode()); err != nil {
		return kp, fmt.Errorf("identity: rotate: emit: %w", err)
	}
	return kp, nil
}

// BindHuman emits IDENTITY_CREATED binding humanID to kp's NodeID with a
// human-readable label, per SPEC_FULL.md §C.2.
func (m *Manager) BindHuman(humanID crypto.Hash, kp crypto.KeyPair, label string) error {
	_, err := m.led.AppendLocal(ledger.IdentityCreated, ledger.IdentityCreatedPayload{
		HumanID: humanID, PublicKey: kp.Public, Label: label,
	}.Encode())
	if err != nil {
		return fmt.Errorf("identity: bind: %w", err)
	}
	return nil
}

// RevokeHuman emits IDENTITY_REVOKED for humanID.
func (m *Manager) RevokeHuman(humanID crypto.Hash, reason string) error {
	_, err := m.led.AppendLocal(ledger.IdentityRevoked, ledger.IdentityRevokedPayload{
		HumanID: humanID, Reason: reason,
	}.Encode())
	if err != nil {
		return fmt.Errorf("identity: revoke: %w", err)
	}
	return nil
}
