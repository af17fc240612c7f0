package network

import (
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"cashew/internal/crypto"
	"cashew/internal/ledger"
	"cashew/internal/state"
)

// Manager is the Network membership, invitation, and quorum-health
// authority (component C8). It is the only component permitted to emit
// NETWORK_CREATED/NETWORK_INVITATION_SENT/NETWORK_INVITATION_ACCEPTED/
// NETWORK_MEMBER_REMOVED/NETWORK_DISBANDED events; state.Projector folds
// them into the derived NetworkState that Manager reads back for queries.
//
// Manager acquires no lock but its own: membership and health reads go
// through state.Projector's already-locked snapshot API.
type Manager struct {
	mu      sync.RWMutex
	led     *ledger.Ledger
	st      *state.Projector
	log     *logrus.Logger
	pending map[NetworkID]map[NodeID]*Invitation
	reliab  ReliabilityFunc
}

func New(led *ledger.Ledger, st *state.Projector, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		led:     led,
		st:      st,
		log:     log,
		pending: make(map[NetworkID]map[NodeID]*Invitation),
		reliab:  func(NodeID) float64 { return 1.0 },
	}
}

// SetReliabilityFunc wires internal/replication's real reliability scorer
// in place of the constant default.
func (m *Manager) SetReliabilityFunc(f ReliabilityFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reliab = f
}

// CreateNetwork emits NETWORK_CREATED for thingHash, founded by founder,
// with the given quorum policy, and folds in founder as the first member
// via NETWORK_MEMBER_ADDED-equivalent NetworkMembershipPayload.
func (m *Manager) CreateNetwork(networkID, thingHash, founder NodeID, q state.Quorum) (*ledger.Event, error) {
	if q.Min < minNetworkQuorum || q.Max > maxNetworkQuorum || q.Min > q.Target || q.Target > q.Max {
		return nil, fmt.Errorf("network: quorum %+v out of bounds [%d,%d]", q, minNetworkQuorum, maxNetworkQuorum)
	}
	if _, err := m.led.AppendLocal(ledger.NetworkCreated, ledger.NetworkCreatedPayload{
		NetworkID: networkID, ThingHash: thingHash, Founder: founder,
		MinQuorum: uint32(q.Min), Target: uint32(q.Target), MaxQuorum: uint32(q.Max),
	}.Encode()); err != nil {
		return nil, fmt.Errorf("network: create: %w", err)
	}
	return m.led.AppendLocal(ledger.NetworkMemberAdded, ledger.NetworkMembershipPayload{
		NetworkID: networkID, Member: founder, Role: string(state.RoleFounder),
	}.Encode())
}

// Invite signs and records a pending invitation for invitee, issued by
// inviter under priv. Only a FOUNDER or FULL member may invite, per
// spec §4.4.
func (m *Manager) Invite(networkID, inviter, invitee NodeID, role string, issuedAt int64, priv ed25519.PrivateKey) (*Invitation, error) {
	net, ok := m.st.NetworkState(networkID)
	if !ok || !net.IsActive {
		return nil, fmt.Errorf("network: %s is not an active network", networkID)
	}
	r, ok := net.MemberRoles[inviter]
	if !ok || (r != state.RoleFounder && r != state.RoleFull) {
		return nil, fmt.Errorf("network: %s lacks invite privilege in %s", inviter, networkID)
	}
	if _, ok := net.Members[invitee]; ok {
		return nil, fmt.Errorf("network: %s is already a member of %s", invitee, networkID)
	}
	if len(net.Members) >= net.Quorum.Max {
		return nil, fmt.Errorf("network: %s is at its max quorum of %d", networkID, net.Quorum.Max)
	}

	inv := signInvitation(networkID, inviter, invitee, role, issuedAt, priv)
	if _, err := m.led.AppendLocal(ledger.NetworkInvitationSent, ledger.NetworkInvitationPayload{
		NetworkID: networkID, Inviter: inviter, Invitee: invitee, Role: role, ExpiresAt: inv.ExpiresAt,
	}.Encode()); err != nil {
		return nil, fmt.Errorf("network: invite: %w", err)
	}

	m.mu.Lock()
	if m.pending[networkID] == nil {
		m.pending[networkID] = make(map[NodeID]*Invitation)
	}
	m.pending[networkID][invitee] = inv
	m.mu.Unlock()
	return inv, nil
}

// Accept verifies a previously recorded invitation under the inviter's
// public key and folds invitee into the network's membership.
func (m *Manager) Accept(inv *Invitation, inviterPub ed25519.PublicKey, now int64) (*ledger.Event, error) {
	if err := inv.Verify(inviterPub, now); err != nil {
		return nil, fmt.Errorf("network: accept: %w", err)
	}
	if _, err := m.led.AppendLocal(ledger.NetworkInvitationAccepted, ledger.NetworkInvitationPayload{
		NetworkID: inv.NetworkID, Inviter: inv.Inviter, Invitee: inv.Invitee,
		Role: inv.Role, ExpiresAt: inv.ExpiresAt,
	}.Encode()); err != nil {
		return nil, fmt.Errorf("network: accept: %w", err)
	}
	ev, err := m.led.AppendLocal(ledger.NetworkMemberAdded, ledger.NetworkMembershipPayload{
		NetworkID: inv.NetworkID, Member: inv.Invitee, Role: inv.Role,
	}.Encode())
	if err != nil {
		return nil, fmt.Errorf("network: accept: %w", err)
	}

	m.mu.Lock()
	delete(m.pending[inv.NetworkID], inv.Invitee)
	m.mu.Unlock()
	return ev, nil
}

// RemoveMember emits NETWORK_MEMBER_REMOVED for member, for the given
// reason (e.g. "inactive", "voluntary_leave", "quorum_shrink").
func (m *Manager) RemoveMember(networkID, member NodeID, reason string) (*ledger.Event, error) {
	net, ok := m.st.NetworkState(networkID)
	if !ok {
		return nil, fmt.Errorf("network: unknown network %s", networkID)
	}
	if _, ok := net.Members[member]; !ok {
		return nil, fmt.Errorf("network: %s is not a member of %s", member, networkID)
	}
	return m.led.AppendLocal(ledger.NetworkMemberRemoved, ledger.NetworkMemberRemovedPayload{
		NetworkID: networkID, Member: member, Reason: reason,
	}.Encode())
}

// Disband emits NETWORK_DISBANDED, per spec §4.4's dissolution path (e.g.
// founder-initiated, or membership dropping below minNetworkQuorum with
// no recovery within the replicator's grace window).
func (m *Manager) Disband(networkID NodeID, reason string) (*ledger.Event, error) {
	if _, ok := m.st.NetworkState(networkID); !ok {
		return nil, fmt.Errorf("network: unknown network %s", networkID)
	}
	return m.led.AppendLocal(ledger.NetworkDisbanded, ledger.NetworkDisbandedPayload{
		NetworkID: networkID, Reason: reason,
	}.Encode())
}

// Health reports the network's current health classification, per
// spec §4.4. healthyReplicaCount is supplied by internal/replication,
// which tracks which member replicas are actually serving traffic.
func (m *Manager) Health(networkID NodeID, healthyReplicaCount int) (HealthStatus, error) {
	net, ok := m.st.NetworkState(networkID)
	if !ok {
		return HealthCritical, fmt.Errorf("network: unknown network %s", networkID)
	}
	allActive := true
	m.mu.RLock()
	reliab := m.reliab
	m.mu.RUnlock()
	for member := range net.Members {
		if reliab(member) < reliabilityFloor {
			allActive = false
			break
		}
	}
	return ClassifyHealth(healthyReplicaCount, net.Quorum, allActive), nil
}

// Candidates returns network members eligible to take on a new replica,
// per spec §4.4: reliability at or above reliabilityFloor, ranked by
// descending reliability then ascending NodeID for a deterministic
// tie-break.
func (m *Manager) Candidates(networkID NodeID) []NodeID {
	net, ok := m.st.NetworkState(networkID)
	if !ok {
		return nil
	}
	m.mu.RLock()
	reliab := m.reliab
	m.mu.RUnlock()

	out := make([]NodeID, 0, len(net.Members))
	for member := range net.Members {
		if reliab(member) >= reliabilityFloor {
			out = append(out, member)
		}
	}
	sortByReliabilityThenID(out, reliab)
	return out
}

func sortByReliabilityThenID(nodes []NodeID, reliab ReliabilityFunc) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0; j-- {
			a, b := nodes[j-1], nodes[j]
			ra, rb := reliab(a), reliab(b)
			swap := ra < rb || (ra == rb && lessHash(b, a))
			if !swap {
				break
			}
			nodes[j-1], nodes[j] = nodes[j], nodes[j-1]
		}
	}
}

func lessHash(a, b crypto.Hash) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
