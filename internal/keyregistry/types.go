// Package keyregistry implements Cashew's key inventory, decay, transfer,
// and vouching logic (component C5). Balances themselves live in
// internal/state's derived NodeState; this package adds the policy layer
// on top — decay timers, transfer/vouch eligibility — and emits the
// ledger events that move balances.
package keyregistry

import (
	"cashew/internal/ledger"
)

// DecayPolicy configures when a key type's balance decays, per spec §4.3.
type DecayPolicy struct {
	MaxAgeSeconds       int64
	InactivityThreshold int64
	RequiresActivity    bool
	MinActionsPerEpoch  uint32
	RequiresPerformance bool
	MinSuccessRate      float64
}

const (
	keyDecayPeriod      = 30 * 24 * 3600 // spec §6.5 KEY_DECAY_PERIOD
	inactivityThreshold = 7 * 24 * 3600  // spec §3: inactive >= 7 days
)

// DefaultDecayPolicies returns the per-key-type decay policy table. IDENTITY
// keys never decay (spec §3); the rest share the 30-day/7-day defaults
// unless a type has a tighter operational requirement.
func DefaultDecayPolicies() map[ledger.KeyType]DecayPolicy {
	base := DecayPolicy{
		MaxAgeSeconds:       keyDecayPeriod,
		InactivityThreshold: inactivityThreshold,
	}
	return map[ledger.KeyType]DecayPolicy{
		ledger.KeyNode:    base,
		ledger.KeyNetwork: base,
		ledger.KeyService: {
			MaxAgeSeconds:       keyDecayPeriod,
			InactivityThreshold: inactivityThreshold,
			RequiresPerformance: true,
			MinSuccessRate:      0.5,
		},
		ledger.KeyRouting: {
			MaxAgeSeconds:       keyDecayPeriod,
			InactivityThreshold: inactivityThreshold,
			RequiresActivity:    true,
			MinActionsPerEpoch:  1,
		},
	}
}

// keyMetadata tracks per-(owner, key_type) issuance/use timestamps the
// derived NodeState doesn't keep, needed to evaluate decay policies.
type keyMetadata struct {
	issuedAt   int64
	lastUsedAt int64
	source     ledger.IssuanceMethod
}

// DecayCandidate is a key balance found eligible for decay on a given tick.
type DecayCandidate struct {
	Owner   ledger.NodeID
	KeyType ledger.KeyType
	Count   uint32
	Reason  ledger.DecayReason
}
