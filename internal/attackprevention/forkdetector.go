package attackprevention

import (
	"crypto/ed25519"
	"sync"

	"cashew/internal/crypto"
)

type keyRecord struct {
	publicKey     ed25519.PublicKey
	firstSeenAt   int64
	lastSeenAt    int64
	signatureUses int
}

// ForkDetector flags a NodeID observed signing with more than one
// distinct public key, per attack_prevention.hpp's ForkDetector (a fork
// attack: same NodeID, different keys).
type ForkDetector struct {
	mu     sync.Mutex
	keys   map[NodeID][]*keyRecord
	forked map[NodeID]string
}

func NewForkDetector() *ForkDetector {
	return &ForkDetector{keys: make(map[NodeID][]*keyRecord), forked: make(map[NodeID]string)}
}

// RecordKey records pub as a key seen for node at now, creating a new
// KeyRecord the first time pub is seen for that node.
func (f *ForkDetector) RecordKey(node NodeID, pub ed25519.PublicKey, now int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.keys[node] {
		if bytesEqual(r.publicKey, pub) {
			r.lastSeenAt = now
			return
		}
	}
	f.keys[node] = append(f.keys[node], &keyRecord{publicKey: pub, firstSeenAt: now, lastSeenAt: now})
}

// DetectFork reports whether node has previously signed under a key
// other than claimedKey, and records claimedKey for future checks.
func (f *ForkDetector) DetectFork(node NodeID, claimedKey ed25519.PublicKey, now int64) bool {
	f.mu.Lock()
	existing := f.keys[node]
	f.mu.Unlock()

	forked := false
	for _, r := range existing {
		if !bytesEqual(r.publicKey, claimedKey) {
			forked = true
			break
		}
	}
	f.RecordKey(node, claimedKey, now)
	if forked {
		f.MarkForked(node, "conflicting public key observed")
	}
	return forked
}

// VerifySignatureConsistency checks sig over msg under every key
// recorded for node, incrementing signatureUses on the matching record.
// It returns false only when node has a recorded key and none verifies
// (an unknown node has no baseline to be inconsistent with).
func (f *ForkDetector) VerifySignatureConsistency(node NodeID, msg, sig []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	records := f.keys[node]
	if len(records) == 0 {
		return true
	}
	for _, r := range records {
		if crypto.Verify(r.publicKey, msg, sig) {
			r.signatureUses++
			return true
		}
	}
	return false
}

func (f *ForkDetector) MarkForked(node NodeID, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forked[node] = reason
}

func (f *ForkDetector) DetectedForks() []NodeID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]NodeID, 0, len(f.forked))
	for n := range f.forked {
		out = append(out, n)
	}
	return out
}

func (f *ForkDetector) ForkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.forked)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
