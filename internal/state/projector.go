package state

import (
	"sync"

	"github.com/sirupsen/logrus"

	"cashew/internal/crypto"
	"cashew/internal/ledger"
)

// Projector folds ledger events into the derived node/network/thing views
// of spec §4.2. It is a pure function of (prior_state, event) -> next_state:
// Apply never consults anything but its own maps and the event itself.
type Projector struct {
	mu sync.RWMutex

	led *ledger.Ledger
	log *logrus.Logger

	applied  map[crypto.Hash]struct{}
	nodes    map[NodeID]*NodeState
	networks map[NetworkID]*NetworkState
	things   map[crypto.Hash]*ThingState

	stopCh chan struct{}
}

// New creates a Projector bound to led. Call Rebuild to fold the ledger's
// existing history, then Run to keep folding live appends.
func New(led *ledger.Ledger, log *logrus.Logger) *Projector {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Projector{
		led:      led,
		log:      log,
		applied:  make(map[crypto.Hash]struct{}),
		nodes:    make(map[NodeID]*NodeState),
		networks: make(map[NetworkID]*NetworkState),
		things:   make(map[crypto.Hash]*ThingState),
		stopCh:   make(chan struct{}),
	}
}

// Rebuild clears all derived state and replays every event currently in the
// ledger, in per-source chain order. Events from different sources may be
// interleaved in any order: Apply is commutative across source-disjoint
// events by construction (each event only ever touches state keyed by
// identifiers it names).
func (p *Projector) Rebuild() {
	p.mu.Lock()
	p.applied = make(map[crypto.Hash]struct{})
	p.nodes = make(map[NodeID]*NodeState)
	p.networks = make(map[NetworkID]*NetworkState)
	p.things = make(map[crypto.Hash]*ThingState)
	p.mu.Unlock()

	for _, e := range p.led.All() {
		p.Apply(e)
	}
}

// Run subscribes to the ledger and applies every newly appended event until
// Stop is called. Intended to run on its own goroutine.
func (p *Projector) Run() {
	ch := p.led.Subscribe()
	for {
		select {
		case <-p.stopCh:
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			p.Apply(e)
		}
	}
}

// Stop ends a running Run loop.
func (p *Projector) Stop() { close(p.stopCh) }

// Apply folds a single event into the derived state. Idempotent: re-applying
// an already-seen event_id is a no-op, guarding against duplicate delivery
// over gossip.
func (p *Projector) Apply(e *ledger.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, done := p.applied[e.EventID]; done {
		return
	}
	p.applied[e.EventID] = struct{}{}

	switch e.Type {
	case ledger.NodeJoined:
		p.applyNodeJoined(e)
	case ledger.NodeLeft:
		p.applyNodeLeft(e)
	case ledger.KeyIssued:
		p.applyKeyIssued(e)
	case ledger.KeyTransferred:
		p.applyKeyTransferred(e)
	case ledger.KeyRevoked:
		p.applyKeyRevoked(e)
	case ledger.KeyDecayed:
		p.applyKeyDecayed(e)
	case ledger.NetworkCreated:
		p.applyNetworkCreated(e)
	case ledger.NetworkMemberAdded:
		p.applyNetworkMemberAdded(e)
	case ledger.NetworkMemberRemoved:
		p.applyNetworkMemberRemoved(e)
	case ledger.NetworkDisbanded:
		p.applyNetworkDisbanded(e)
	case ledger.ThingCreated:
		p.applyThingCreated(e)
	case ledger.ThingReplicated:
		p.applyThingReplicated(e)
	case ledger.ThingRemoved:
		p.applyThingRemoved(e)
	case ledger.ReputationUpdated:
		p.applyReputationUpdated(e)
	case ledger.PowSolutionSubmitted:
		p.applyPowSolution(e)
	case ledger.PostakeContribution:
		p.applyPostakeContribution(e)
	default:
		// NetworkInvitationSent/Accepted, Attestation/Vouch, Identity* events
		// are folded by their owning subsystems (internal/network,
		// internal/reputation, internal/identity respectively); the core
		// projector does not hold a view for them.
	}
}

func (p *Projector) nodeLocked(id NodeID, at int64) *NodeState {
	n, ok := p.nodes[id]
	if !ok {
		n = newNodeState(id, at)
		p.nodes[id] = n
	}
	return n
}

func (p *Projector) applyNodeJoined(e *ledger.Event) {
	n := p.nodeLocked(e.SourceNode, e.Timestamp)
	n.IsActive = true
	n.LastActivityAt = e.Timestamp
}

func (p *Projector) applyNodeLeft(e *ledger.Event) {
	if n, ok := p.nodes[e.SourceNode]; ok {
		n.IsActive = false
	}
}

func (p *Projector) applyKeyIssued(e *ledger.Event) {
	payload, err := ledger.DecodeKeyIssuance(e.Payload)
	if err != nil {
		p.log.WithError(err).Warn("state: malformed KeyIssuance payload, dropping")
		return
	}
	n := p.nodeLocked(e.SourceNode, e.Timestamp)
	n.KeyBalances[payload.KeyType] += payload.Count
	n.LastActivityAt = e.Timestamp
}

func (p *Projector) applyKeyTransferred(e *ledger.Event) {
	payload, err := ledger.DecodeKeyTransfer(e.Payload)
	if err != nil {
		p.log.WithError(err).Warn("state: malformed KeyTransfer payload, dropping")
		return
	}
	from := p.nodeLocked(payload.From, e.Timestamp)
	to := p.nodeLocked(payload.To, e.Timestamp)
	if from.KeyBalances[payload.KeyType] >= payload.Count {
		from.KeyBalances[payload.KeyType] -= payload.Count
	} else {
		from.KeyBalances[payload.KeyType] = 0
	}
	to.KeyBalances[payload.KeyType] += payload.Count
}

// applyKeyRevoked decrements the owner's balance for the revoked key type.
// This semantics is specified by spec §9 as a stub the original source
// left unimplemented; the behavior here is the one the spec mandates.
func (p *Projector) applyKeyRevoked(e *ledger.Event) {
	payload, err := ledger.DecodeKeyRevoked(e.Payload)
	if err != nil {
		p.log.WithError(err).Warn("state: malformed KeyRevoked payload, dropping")
		return
	}
	n := p.nodeLocked(payload.Owner, e.Timestamp)
	if n.KeyBalances[payload.KeyType] >= payload.Count {
		n.KeyBalances[payload.KeyType] -= payload.Count
	} else {
		n.KeyBalances[payload.KeyType] = 0
	}
}

func (p *Projector) applyKeyDecayed(e *ledger.Event) {
	payload, err := ledger.DecodeKeyDecayed(e.Payload)
	if err != nil {
		p.log.WithError(err).Warn("state: malformed KeyDecayed payload, dropping")
		return
	}
	n := p.nodeLocked(payload.Owner, e.Timestamp)
	if n.KeyBalances[payload.KeyType] >= payload.Count {
		n.KeyBalances[payload.KeyType] -= payload.Count
	} else {
		n.KeyBalances[payload.KeyType] = 0
	}
}

func (p *Projector) applyNetworkCreated(e *ledger.Event) {
	payload, err := ledger.DecodeNetworkCreated(e.Payload)
	if err != nil {
		p.log.WithError(err).Warn("state: malformed NetworkCreated payload, dropping")
		return
	}
	q := Quorum{Min: int(payload.MinQuorum), Target: int(payload.Target), Max: int(payload.MaxQuorum)}
	p.networks[payload.NetworkID] = newNetworkState(payload.NetworkID, payload.ThingHash, e.Timestamp, q)
}

func (p *Projector) applyNetworkMemberAdded(e *ledger.Event) {
	payload, err := ledger.DecodeNetworkMembership(e.Payload)
	if err != nil {
		p.log.WithError(err).Warn("state: malformed NetworkMembership payload, dropping")
		return
	}
	net, ok := p.networks[payload.NetworkID]
	if !ok {
		p.log.WithField("network_id", payload.NetworkID.String()).Warn("state: member added to unknown network")
		return
	}
	net.Members[payload.Member] = struct{}{}
	net.MemberRoles[payload.Member] = MemberRole(payload.Role)
	member := p.nodeLocked(payload.Member, e.Timestamp)
	member.Networks[payload.NetworkID] = struct{}{}
}

// applyNetworkMemberRemoved erases the member from the network's
// members/roles and from the node's own networks set. This semantics is
// specified by spec §9 as a stub the original source left unimplemented.
func (p *Projector) applyNetworkMemberRemoved(e *ledger.Event) {
	payload, err := ledger.DecodeNetworkMemberRemoved(e.Payload)
	if err != nil {
		p.log.WithError(err).Warn("state: malformed NetworkMemberRemoved payload, dropping")
		return
	}
	if net, ok := p.networks[payload.NetworkID]; ok {
		delete(net.Members, payload.Member)
		delete(net.MemberRoles, payload.Member)
	}
	if n, ok := p.nodes[payload.Member]; ok {
		delete(n.Networks, payload.NetworkID)
	}
}

func (p *Projector) applyNetworkDisbanded(e *ledger.Event) {
	payload, err := ledger.DecodeNetworkDisbanded(e.Payload)
	if err != nil {
		p.log.WithError(err).Warn("state: malformed NetworkDisbanded payload, dropping")
		return
	}
	if net, ok := p.networks[payload.NetworkID]; ok {
		net.IsActive = false
	}
}

func (p *Projector) applyThingCreated(e *ledger.Event) {
	payload, err := ledger.DecodeThingCreated(e.Payload)
	if err != nil {
		p.log.WithError(err).Warn("state: malformed ThingCreated payload, dropping")
		return
	}
	t, ok := p.things[payload.ContentHash]
	if !ok {
		t = newThingState(payload.ContentHash, e.Timestamp, payload.Size)
		p.things[payload.ContentHash] = t
	}
}

func (p *Projector) applyThingReplicated(e *ledger.Event) {
	payload, err := ledger.DecodeThingReplication(e.Payload)
	if err != nil {
		p.log.WithError(err).Warn("state: malformed ThingReplication payload, dropping")
		return
	}
	t, ok := p.things[payload.ContentHash]
	if !ok {
		t = newThingState(payload.ContentHash, e.Timestamp, payload.Size)
		p.things[payload.ContentHash] = t
	}
	t.Hosts[payload.Host] = struct{}{}
	t.IsAvailable = true
	if !payload.NetworkID.IsZero() {
		t.Networks[payload.NetworkID] = struct{}{}
	}
	host := p.nodeLocked(payload.Host, e.Timestamp)
	host.HostedThings[payload.ContentHash] = struct{}{}
}

// applyThingRemoved drops the host from the Thing's hosts set and unsets
// IsAvailable once the hosts set becomes empty. This semantics is specified
// by spec §9 as a stub the original source left unimplemented.
func (p *Projector) applyThingRemoved(e *ledger.Event) {
	payload, err := ledger.DecodeThingRemoved(e.Payload)
	if err != nil {
		p.log.WithError(err).Warn("state: malformed ThingRemoved payload, dropping")
		return
	}
	t, ok := p.things[payload.ContentHash]
	if !ok {
		return
	}
	delete(t.Hosts, payload.Host)
	if len(t.Hosts) == 0 {
		t.IsAvailable = false
	}
	if h, ok := p.nodes[payload.Host]; ok {
		delete(h.HostedThings, payload.ContentHash)
	}
}

func (p *Projector) applyReputationUpdated(e *ledger.Event) {
	payload, err := ledger.DecodeReputationUpdate(e.Payload)
	if err != nil {
		p.log.WithError(err).Warn("state: malformed ReputationUpdate payload, dropping")
		return
	}
	n := p.nodeLocked(payload.Subject, e.Timestamp)
	n.ReputationScore = clampReputation(n.ReputationScore + payload.ScoreDelta)
}

func (p *Projector) applyPowSolution(e *ledger.Event) {
	n := p.nodeLocked(e.SourceNode, e.Timestamp)
	n.PowSolutions++
	n.LastActivityAt = e.Timestamp
}

func (p *Projector) applyPostakeContribution(e *ledger.Event) {
	payload, err := ledger.DecodePostakeContribution(e.Payload)
	if err != nil {
		p.log.WithError(err).Warn("state: malformed PostakeContribution payload, dropping")
		return
	}
	n := p.nodeLocked(e.SourceNode, e.Timestamp)
	n.PostakeContributions++
	n.BandwidthContributed += payload.Amount
	n.LastActivityAt = e.Timestamp
}

func clampReputation(v int32) int32 {
	if v < -1000 {
		return -1000
	}
	if v > 10000 {
		return 10000
	}
	return v
}
