package access

import (
	"crypto/ed25519"
	"fmt"
	"sync"

	"cashew/internal/crypto"
)

const (
	maxActiveRevocationsPerNode = 100
	revocationExpirySeconds     = 30 * 24 * 3600
	clockToleranceSeconds       = 5 * 60
)

// RevocationEntry is {node_id, capability, reason, revoked_at, revoker,
// context, signature}, per spec §4.7.
type RevocationEntry struct {
	ID         crypto.Hash
	Node       NodeID
	Capability Capability
	Reason     string
	RevokedAt  int64
	Revoker    NodeID
	Context    []byte
	Signature  []byte
}

func (e *RevocationEntry) signingBytes() []byte {
	capBytes := []byte(e.Capability)
	reasonBytes := []byte(e.Reason)
	out := make([]byte, 0, 32+4+len(capBytes)+4+len(reasonBytes)+8+32+4+len(e.Context))
	out = append(out, e.Node[:]...)
	out = appendU32(out, uint32(len(capBytes)))
	out = append(out, capBytes...)
	out = appendU32(out, uint32(len(reasonBytes)))
	out = append(out, reasonBytes...)
	out = appendU64(out, uint64(e.RevokedAt))
	out = append(out, e.Revoker[:]...)
	out = appendU32(out, uint32(len(e.Context)))
	out = append(out, e.Context...)
	return out
}

// revocationID computes BLAKE3(node_id‖capability‖reason‖revoked_at‖revoker‖context),
// per spec §4.7.
func revocationID(node NodeID, cap Capability, reason string, revokedAt int64, revoker NodeID, context []byte) crypto.Hash {
	e := RevocationEntry{Node: node, Capability: cap, Reason: reason, RevokedAt: revokedAt, Revoker: revoker, Context: context}
	return crypto.Sum(e.signingBytes())
}

// RevocationList is indexed by node_id and by capability, per spec §4.7.
type RevocationList struct {
	mu       sync.RWMutex
	byID     map[crypto.Hash]*RevocationEntry
	byNode   map[NodeID]map[crypto.Hash]struct{}
	byCap    map[Capability]map[crypto.Hash]struct{}
}

func NewRevocationList() *RevocationList {
	return &RevocationList{
		byID:   make(map[crypto.Hash]*RevocationEntry),
		byNode: make(map[NodeID]map[crypto.Hash]struct{}),
		byCap:  make(map[Capability]map[crypto.Hash]struct{}),
	}
}

// Revoke signs and records a new revocation under priv (the revoker's
// key). It enforces the per-node active-revocation cap of spec §4.7.
func (r *RevocationList) Revoke(node NodeID, cap Capability, reason string, revokedAt int64, revoker NodeID, context []byte, priv ed25519.PrivateKey) (*RevocationEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.byNode[node]) >= maxActiveRevocationsPerNode {
		return nil, fmt.Errorf("access: %s already has %d active revocations", node, maxActiveRevocationsPerNode)
	}
	e := &RevocationEntry{
		ID: revocationID(node, cap, reason, revokedAt, revoker, context),
		Node: node, Capability: cap, Reason: reason, RevokedAt: revokedAt,
		Revoker: revoker, Context: context,
	}
	e.Signature = crypto.Sign(priv, e.signingBytes())
	r.insertLocked(e)
	return e, nil
}

// Process accepts a remote revocation iff (a) signature valid under
// revokerPub, (b) |revoked_at - now| <= 5 min clock tolerance, (c) the
// node does not yet have > 100 active revocations, per spec §4.7.
// Deduplicates by revocation ID.
func (r *RevocationList) Process(e *RevocationEntry, revokerPub ed25519.PublicKey, now int64) error {
	if !crypto.Verify(revokerPub, e.signingBytes(), e.Signature) {
		return fmt.Errorf("access: revocation signature invalid")
	}
	delta := now - e.RevokedAt
	if delta < 0 {
		delta = -delta
	}
	if delta > clockToleranceSeconds {
		return fmt.Errorf("access: revocation clock skew %ds exceeds tolerance", delta)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byID[e.ID]; dup {
		return nil
	}
	if len(r.byNode[e.Node]) >= maxActiveRevocationsPerNode {
		return fmt.Errorf("access: %s already has %d active revocations", e.Node, maxActiveRevocationsPerNode)
	}
	r.insertLocked(e)
	return nil
}

func (r *RevocationList) insertLocked(e *RevocationEntry) {
	r.byID[e.ID] = e
	if r.byNode[e.Node] == nil {
		r.byNode[e.Node] = make(map[crypto.Hash]struct{})
	}
	r.byNode[e.Node][e.ID] = struct{}{}
	if r.byCap[e.Capability] == nil {
		r.byCap[e.Capability] = make(map[crypto.Hash]struct{})
	}
	r.byCap[e.Capability][e.ID] = struct{}{}
}

// IsRevoked reports whether tokenIssuedAt predates any held revocation
// matching (node, capability, context). It applies no age limit itself: a
// revocation keeps matching until PruneExpired removes it.
func (r *RevocationList) IsRevoked(node NodeID, cap Capability, context []byte, tokenIssuedAt int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id := range r.byNode[node] {
		e := r.byID[id]
		if e == nil || e.Capability != cap {
			continue
		}
		if !bytesEqual(e.Context, context) {
			continue
		}
		if tokenIssuedAt < e.RevokedAt {
			return true
		}
	}
	return false
}

// PruneExpired drops revocations older than revocationExpirySeconds,
// per spec §4.7's 30-day default expiry.
func (r *RevocationList) PruneExpired(now int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, e := range r.byID {
		if now-e.RevokedAt > revocationExpirySeconds {
			delete(r.byID, id)
			delete(r.byNode[e.Node], id)
			delete(r.byCap[e.Capability], id)
			removed++
		}
	}
	return removed
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
