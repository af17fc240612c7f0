// Package crypto provides the primitive operations shared by every other
// Cashew component: Ed25519 signing, BLAKE3 content addressing, and
// ChaCha20-Poly1305 authenticated encryption for the local identity file.
//
// All crypto comes from Go's std-lib ed25519/rand plus BLAKE3 and
// ChaCha20-Poly1305 from the wider ecosystem; no bespoke primitives.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"lukechampine.com/blake3"
)

// HashSize is the width of every identifier in the system: NodeID, HumanID,
// NetworkID, ContentHash and event_id are all 32-byte BLAKE3 digests.
const HashSize = 32

// Hash is a 32-byte BLAKE3 digest, the common identifier type.
type Hash [HashSize]byte

// IsZero reports whether h is the all-zero sentinel (used for a chain's
// first event, which has no previous hash).
func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) String() string { return fmt.Sprintf("%x", h[:]) }

// Bytes returns a copy of the digest as a slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// HashFromBytes copies b (which must be exactly HashSize long) into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("crypto: hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Sum computes the BLAKE3-256 digest of data.
func Sum(data []byte) Hash {
	return Hash(blake3.Sum256(data))
}

// SumAll computes the BLAKE3-256 digest over the concatenation of parts,
// without an intermediate allocation of the concatenated buffer.
func SumAll(parts ...[]byte) Hash {
	h := blake3.New(HashSize, nil)
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// KeyPair bundles an Ed25519 public/private key pair.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh Ed25519 identity using the system CSPRNG.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("crypto: generate key: %w", err)
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

// NodeID derives a node's identifier from its Ed25519 public key:
// NodeID = BLAKE3(ed25519_public_key).
func NodeIDFromPublicKey(pub ed25519.PublicKey) Hash {
	return Sum(pub)
}

// Sign signs msg with the given Ed25519 private key.
func Sign(priv ed25519.PrivateKey, msg []byte) []byte {
	return ed25519.Sign(priv, msg)
}

// Verify checks sig over msg under pub.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// RandomBytes fills and returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("crypto: random bytes: %w", err)
	}
	return b, nil
}

// DeriveKeyFromPassword derives a 32-byte symmetric key from a password via
// BLAKE3, matching the identity-file encryption scheme of spec §6.2.
func DeriveKeyFromPassword(password string) [32]byte {
	return [32]byte(blake3.Sum256([]byte(password)))
}

// Encrypt seals plaintext with ChaCha20-Poly1305 under key, prepending a
// fresh random 12-byte nonce to the returned ciphertext.
func Encrypt(key [32]byte, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: new aead: %w", err)
	}
	nonce, err := RandomBytes(aead.NonceSize())
	if err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens data produced by Encrypt under key.
func Decrypt(key [32]byte, data []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: new aead: %w", err)
	}
	if len(data) < aead.NonceSize() {
		return nil, errors.New("crypto: ciphertext too short")
	}
	nonce, ct := data[:aead.NonceSize()], data[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt: %w", err)
	}
	return pt, nil
}
