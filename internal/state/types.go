// Package state implements Cashew's derived-state projector (component C4):
// the pure fold of the event ledger into node, network, thing, and
// reputation views. The projector owns these views; everything else holds
// a read reference.
package state

import (
	"cashew/internal/crypto"
	"cashew/internal/ledger"
)

type (
	NodeID    = crypto.Hash
	NetworkID = crypto.Hash
	HumanID   = crypto.Hash
)

// MemberRole enumerates a Network member's standing, per spec §3.
type MemberRole string

const (
	RoleFounder  MemberRole = "FOUNDER"
	RoleFull     MemberRole = "FULL"
	RolePending  MemberRole = "PENDING"
	RoleObserver MemberRole = "OBSERVER"
)

// Quorum is a Network's replica-count policy, per spec §3.
type Quorum struct {
	Min    int
	Target int
	Max    int
}

// DefaultQuorum matches spec §3's default (3,5,10).
func DefaultQuorum() Quorum { return Quorum{Min: 3, Target: 5, Max: 10} }

// NodeState is the derived view of one node, fully reconstructible from the
// ledger and never mutated directly outside Apply.
type NodeState struct {
	NodeID              NodeID
	JoinedAt            int64
	IsActive            bool
	LastActivityAt       int64
	KeyBalances         map[ledger.KeyType]uint32
	Networks            map[NetworkID]struct{}
	HostedThings        map[crypto.Hash]struct{}
	ReputationScore     int32
	UptimeSeconds       uint64
	BandwidthContributed uint64
	PowSolutions        uint64
	PostakeContributions uint64
}

func newNodeState(id NodeID, joinedAt int64) *NodeState {
	return &NodeState{
		NodeID:       id,
		JoinedAt:     joinedAt,
		IsActive:     true,
		LastActivityAt: joinedAt,
		KeyBalances:  make(map[ledger.KeyType]uint32),
		Networks:     make(map[NetworkID]struct{}),
		HostedThings: make(map[crypto.Hash]struct{}),
	}
}

func (n *NodeState) clone() *NodeState {
	c := &NodeState{
		NodeID: n.NodeID, JoinedAt: n.JoinedAt, IsActive: n.IsActive,
		LastActivityAt: n.LastActivityAt, ReputationScore: n.ReputationScore,
		UptimeSeconds: n.UptimeSeconds, BandwidthContributed: n.BandwidthContributed,
		PowSolutions: n.PowSolutions, PostakeContributions: n.PostakeContributions,
		KeyBalances:  make(map[ledger.KeyType]uint32, len(n.KeyBalances)),
		Networks:     make(map[NetworkID]struct{}, len(n.Networks)),
		HostedThings: make(map[crypto.Hash]struct{}, len(n.HostedThings)),
	}
	for k, v := range n.KeyBalances {
		c.KeyBalances[k] = v
	}
	for k := range n.Networks {
		c.Networks[k] = struct{}{}
	}
	for k := range n.HostedThings {
		c.HostedThings[k] = struct{}{}
	}
	return c
}

// NetworkState is the derived view of one Network, per spec §3.
type NetworkState struct {
	NetworkID   NetworkID
	ThingHash   crypto.Hash
	CreatedAt   int64
	IsActive    bool
	Members     map[NodeID]struct{}
	MemberRoles map[NodeID]MemberRole
	Quorum      Quorum
}

func newNetworkState(id NetworkID, thingHash crypto.Hash, createdAt int64, q Quorum) *NetworkState {
	return &NetworkState{
		NetworkID: id, ThingHash: thingHash, CreatedAt: createdAt, IsActive: true,
		Members:     make(map[NodeID]struct{}),
		MemberRoles: make(map[NodeID]MemberRole),
		Quorum:      q,
	}
}

func (n *NetworkState) clone() *NetworkState {
	c := &NetworkState{
		NetworkID: n.NetworkID, ThingHash: n.ThingHash, CreatedAt: n.CreatedAt,
		IsActive: n.IsActive, Quorum: n.Quorum,
		Members:     make(map[NodeID]struct{}, len(n.Members)),
		MemberRoles: make(map[NodeID]MemberRole, len(n.MemberRoles)),
	}
	for k := range n.Members {
		c.Members[k] = struct{}{}
	}
	for k, v := range n.MemberRoles {
		c.MemberRoles[k] = v
	}
	return c
}

// ThingState is the derived view of one Thing, per spec §3.
type ThingState struct {
	ContentHash   crypto.Hash
	CreatedAt     int64
	IsAvailable   bool
	Hosts         map[NodeID]struct{}
	Networks      map[NetworkID]struct{}
	TotalSize     uint64
}

func newThingState(hash crypto.Hash, createdAt int64, size uint64) *ThingState {
	return &ThingState{
		ContentHash: hash, CreatedAt: createdAt, TotalSize: size,
		Hosts:    make(map[NodeID]struct{}),
		Networks: make(map[NetworkID]struct{}),
	}
}

func (t *ThingState) clone() *ThingState {
	c := &ThingState{
		ContentHash: t.ContentHash, CreatedAt: t.CreatedAt, IsAvailable: t.IsAvailable,
		TotalSize: t.TotalSize,
		Hosts:     make(map[NodeID]struct{}, len(t.Hosts)),
		Networks:  make(map[NetworkID]struct{}, len(t.Networks)),
	}
	for k := range t.Hosts {
		c.Hosts[k] = struct{}{}
	}
	for k := range t.Networks {
		c.Networks[k] = struct{}{}
	}
	return c
}

// ReplicationCount returns |hosts|, the number of nodes currently serving
// this Thing.
func (t *ThingState) ReplicationCount() int { return len(t.Hosts) }

// Snapshot is a point-in-time summary of projector-wide counters.
type Snapshot struct {
	Timestamp        int64
	Epoch            uint64
	LatestLedgerHash crypto.Hash
	NodeCount        int
	NetworkCount     int
	ThingCount       int
}
