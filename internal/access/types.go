// Package access implements Cashew's capability policy table, signed
// TTL'd capability tokens, and revocation list (component C10), grounded
// on core/access_control.go's AccessController (mutex-guarded cache in
// front of a durable store) generalized from flat role grants to the
// capability policy table of spec §4.3.
package access

import (
	"cashew/internal/crypto"
	"cashew/internal/ledger"
	"cashew/internal/state"
)

type (
	NodeID    = crypto.Hash
	NetworkID = crypto.Hash
)

// Capability enumerates the request kinds gated by check_access, per
// spec §4.3's table.
type Capability string

const (
	CapViewContent      Capability = "VIEW_CONTENT"
	CapDiscoverNetworks Capability = "DISCOVER_NETWORKS"
	CapRelayTraffic     Capability = "RELAY_TRAFFIC"
	CapPostContent      Capability = "POST_CONTENT"
	CapVoteOnContent    Capability = "VOTE_ON_CONTENT"
	CapCreateIdentity   Capability = "CREATE_IDENTITY"
	CapHostThings       Capability = "HOST_THINGS"
	CapJoinNetworks     Capability = "JOIN_NETWORKS"
	CapRouteTraffic     Capability = "ROUTE_TRAFFIC"
	CapIssueInvitations Capability = "ISSUE_INVITATIONS"
	CapVouchForNodes    Capability = "VOUCH_FOR_NODES"
	CapCreateNetwork    Capability = "CREATE_NETWORK"
	CapModerateContent  Capability = "MODERATE_CONTENT"
	CapRevokeKeys       Capability = "REVOKE_KEYS"
	CapDisbandNetwork   Capability = "DISBAND_NETWORK"
)

const tokenTTLSeconds = 3600

// Decision is the outcome of check_access, per spec §4.3.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow(reason string) Decision { return Decision{Allowed: true, Reason: reason} }
func deny(reason string) Decision  { return Decision{Allowed: false, Reason: reason} }

// Request is what check_access evaluates.
type Request struct {
	Node        NodeID
	Capability  Capability
	NetworkID   NetworkID // only meaningful for network-scoped capabilities
	HasValidPow bool
}

// requirement is one row of spec §4.3's capability policy table. A zero
// keyType with anyKeyOK false and minKeyCount 0 means "no key requirement".
type requirement struct {
	keyType           ledger.KeyType
	anyKeyOK          bool // "any key >= 1" rather than a specific type
	minKeyCount       uint32
	minReputation     int32
	requiresMember    bool // must already be a member of Request.NetworkID
	requiresNotMember bool
	requiresRole      state.MemberRole // "" if no role requirement
	allowsPowInstead  bool             // POST_CONTENT-style "or valid PoW"
}

// PolicyTable is spec §4.3's capability table.
var PolicyTable = map[Capability]requirement{
	CapViewContent:      {},
	CapDiscoverNetworks: {},
	CapRelayTraffic:     {},
	CapPostContent:      {anyKeyOK: true, minKeyCount: 1, allowsPowInstead: true},
	CapVoteOnContent:    {anyKeyOK: true, minKeyCount: 1, allowsPowInstead: true},
	CapCreateIdentity:   {anyKeyOK: true, minKeyCount: 1, allowsPowInstead: true},
	CapHostThings:       {keyType: ledger.KeyService, minKeyCount: 1},
	CapJoinNetworks:     {keyType: ledger.KeyNetwork, minKeyCount: 1, requiresNotMember: true},
	CapRouteTraffic:     {keyType: ledger.KeyRouting, minKeyCount: 1},
	CapIssueInvitations: {keyType: ledger.KeyNetwork, minKeyCount: 1, requiresMember: true},
	CapVouchForNodes:    {anyKeyOK: true, minKeyCount: 1, minReputation: 100},
	CapCreateNetwork:    {keyType: ledger.KeyNetwork, minKeyCount: 3, minReputation: 50},
	CapModerateContent:  {minReputation: 75, requiresMember: true, requiresRole: state.RoleFull},
	CapRevokeKeys:       {requiresMember: true, requiresRole: state.RoleFounder},
	CapDisbandNetwork:   {requiresMember: true, requiresRole: state.RoleFounder},
}
