package keyregistry

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"cashew/internal/ledger"
	"cashew/internal/state"
)

const (
	maxActiveVouchesPerVoucher = 5
	minReputationToVouch       = 100
	minBalanceToTransfer       = 2
)

// Registry is the key inventory, decay, transfer, and vouching authority
// (C5). It owns per-owner key metadata (issuance/use timestamps) that the
// pure state.Projector does not keep, and is the only component permitted
// to emit KEY_TRANSFERRED/KEY_DECAYED/VOUCH_CREATED events.
//
// Per spec §5's locking discipline, Registry acquires no other component's
// lock: it reads balances through state.Projector's already-locked
// snapshot API and emits events through ledger.Ledger's own locking.
type Registry struct {
	mu   sync.RWMutex
	led  *ledger.Ledger
	st   *state.Projector
	log  *logrus.Logger
	meta map[ledger.NodeID]map[ledger.KeyType]*keyMetadata
}

func New(led *ledger.Ledger, st *state.Projector, log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{
		led:  led,
		st:   st,
		log:  log,
		meta: make(map[ledger.NodeID]map[ledger.KeyType]*keyMetadata),
	}
}

func (r *Registry) touchLocked(owner ledger.NodeID, kt ledger.KeyType, at int64, source ledger.IssuanceMethod) {
	byType, ok := r.meta[owner]
	if !ok {
		byType = make(map[ledger.KeyType]*keyMetadata)
		r.meta[owner] = byType
	}
	m, ok := byType[kt]
	if !ok {
		m = &keyMetadata{issuedAt: at, source: source}
		byType[kt] = m
	}
	m.lastUsedAt = at
}

// RecordIssuance notes that owner was just credited count keys of kt via
// method at time at. Called by internal/issuance after a successful
// KEY_ISSUED append.
func (r *Registry) RecordIssuance(owner ledger.NodeID, kt ledger.KeyType, method ledger.IssuanceMethod, at int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.touchLocked(owner, kt, at, method)
}

// Touch records activity against owner's kt balance (used by decay's
// inactivity check). Call this whenever a key is used to satisfy a
// capability check.
func (r *Registry) Touch(owner ledger.NodeID, kt ledger.KeyType, at int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if byType, ok := r.meta[owner]; ok {
		if m, ok := byType[kt]; ok {
			m.lastUsedAt = at
			return
		}
	}
	r.touchLocked(owner, kt, at, ledger.MethodPow)
}

// Balance returns owner's current balance of kt, read from derived state.
func (r *Registry) Balance(owner ledger.NodeID, kt ledger.KeyType) uint32 {
	return r.st.NodeKeyBalance(owner, kt)
}

// ActiveVouchCount returns how many outstanding vouches voucher has issued,
// derived by scanning the ledger's VOUCH_CREATED events. Vouches have no
// expiry in spec §4.3, so this is a lifetime count.
func (r *Registry) ActiveVouchCount(voucher ledger.NodeID) int {
	n := 0
	for _, e := range r.led.EventsByType(ledger.VouchCreated) {
		p, err := ledger.DecodeVouch(e.Payload)
		if err != nil {
			continue
		}
		if p.Voucher == voucher {
			n++
		}
	}
	return n
}

// Vouch lets voucher sponsor vouchee for one key of kt, subject to spec
// §4.3's reputation (>=100) and active-vouch-count (<5) gates. Emits
// VOUCH_CREATED for the audit trail followed by KEY_ISSUED(method=vouched).
func (r *Registry) Vouch(voucher, vouchee ledger.NodeID, kt ledger.KeyType, at int64) (*ledger.Event, error) {
	ns, ok := r.st.NodeState(voucher)
	if !ok || ns.ReputationScore < minReputationToVouch {
		return nil, fmt.Errorf("keyregistry: voucher %s lacks reputation %d to vouch", voucher, minReputationToVouch)
	}
	if r.ActiveVouchCount(voucher) >= maxActiveVouchesPerVoucher {
		return nil, fmt.Errorf("keyregistry: voucher %s has reached the max %d active vouches", voucher, maxActiveVouchesPerVoucher)
	}

	if _, err := r.led.AppendLocal(ledger.VouchCreated, ledger.VouchPayload{
		Voucher: voucher, Vouchee: vouchee, KeyType: kt,
	}.Encode()); err != nil {
		return nil, fmt.Errorf("keyregistry: append vouch: %w", err)
	}

	ev, err := r.led.AppendLocal(ledger.KeyIssued, ledger.KeyIssuancePayload{
		KeyType: kt, Count: 1, Method: ledger.MethodVouched,
	}.Encode())
	if err != nil {
		return nil, fmt.Errorf("keyregistry: append vouched issuance: %w", err)
	}
	r.RecordIssuance(vouchee, kt, ledger.MethodVouched, at)
	return ev, nil
}

// Transfer moves count keys of kt from from to to, subject to spec §4.3's
// "requires >= 2 keys of the type" eligibility gate. Emits KEY_TRANSFERRED.
func (r *Registry) Transfer(from, to ledger.NodeID, kt ledger.KeyType, count uint32) (*ledger.Event, error) {
	bal := r.Balance(from, kt)
	if bal < minBalanceToTransfer {
		return nil, fmt.Errorf("keyregistry: %s holds %d < %d keys of type %s, transfer ineligible", from, bal, minBalanceToTransfer, kt)
	}
	if bal < count {
		return nil, fmt.Errorf("keyregistry: %s holds insufficient balance (%d < %d) of type %s", from, bal, count, kt)
	}
	ev, err := r.led.AppendLocal(ledger.KeyTransferred, ledger.KeyTransferPayload{
		KeyType: kt, Count: count, From: from, To: to,
	}.Encode())
	if err != nil {
		return nil, fmt.Errorf("keyregistry: append transfer: %w", err)
	}
	return ev, nil
}

// CheckDecay walks every known (owner, key_type) pair with a nonzero
// balance and reports every one eligible for decay at time now, per the
// policy table in DefaultDecayPolicies. Run on the decay ticker (every
// epoch, spec §4.3).
func (r *Registry) CheckDecay(now int64, policies map[ledger.KeyType]DecayPolicy) []DecayCandidate {
	var out []DecayCandidate
	for _, n := range r.st.AllActiveNodes() {
		for kt, bal := range n.KeyBalances {
			if bal == 0 || kt == ledger.KeyIdentity {
				continue // IDENTITY keys never decay, per spec §3
			}
			policy, ok := policies[kt]
			if !ok {
				continue
			}
			if reason, decays := r.evaluate(n, kt, bal, now, policy); decays {
				out = append(out, DecayCandidate{Owner: n.NodeID, KeyType: kt, Count: bal, Reason: reason})
			}
		}
	}
	return out
}

func (r *Registry) evaluate(n *state.NodeState, kt ledger.KeyType, bal uint32, now int64, policy DecayPolicy) (ledger.DecayReason, bool) {
	r.mu.RLock()
	m := r.meta[n.NodeID][kt]
	r.mu.RUnlock()

	lastUsed := n.LastActivityAt
	issuedAt := n.JoinedAt
	if m != nil {
		lastUsed = m.lastUsedAt
		issuedAt = m.issuedAt
	}

	if policy.MaxAgeSeconds > 0 && now-issuedAt > policy.MaxAgeSeconds {
		return ledger.DecayExpiration, true
	}
	if now-n.LastActivityAt >= inactivityThreshold {
		return ledger.DecayInactivity, true
	}
	if policy.InactivityThreshold > 0 && now-lastUsed > policy.InactivityThreshold {
		return ledger.DecayInactivity, true
	}
	if policy.RequiresPerformance && policy.MinSuccessRate > 0 {
		// Success rate needs a per-key outcome history this registry does
		// not track yet; surfaced as a potential decay reason only once
		// internal/replication starts feeding per-job outcomes back in.
	}
	return 0, false
}

// ApplyDecay emits the KEY_DECAYED event for a candidate found by
// CheckDecay, resolving spec §9's "apply_key_revoked is a stub" note's
// sibling: the decay-emission side is not a stub, only the projector's
// apply_key_revoked handler was.
func (r *Registry) ApplyDecay(c DecayCandidate) (*ledger.Event, error) {
	ev, err := r.led.AppendLocal(ledger.KeyDecayed, ledger.KeyDecayedPayload{
		Owner: c.Owner, KeyType: c.KeyType, Count: c.Count, Reason: c.Reason,
	}.Encode())
	if err != nil {
		return nil, fmt.Errorf("keyregistry: append decay: %w", err)
	}
	return ev, nil
}
