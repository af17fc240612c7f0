package state

import (
	"cashew/internal/crypto"
	"cashew/internal/ledger"
)

// NodeState returns a read-only snapshot copy of the given node's derived
// state, or false if the node has never been observed.
func (p *Projector) NodeState(id NodeID) (*NodeState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n, ok := p.nodes[id]
	if !ok {
		return nil, false
	}
	return n.clone(), true
}

// NetworkState returns a read-only snapshot copy of the given Network's
// derived state, or false if it does not exist.
func (p *Projector) NetworkState(id NetworkID) (*NetworkState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n, ok := p.networks[id]
	if !ok {
		return nil, false
	}
	return n.clone(), true
}

// ThingState returns a read-only snapshot copy of the given Thing's
// derived state, or false if it does not exist.
func (p *Projector) ThingState(hash crypto.Hash) (*ThingState, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.things[hash]
	if !ok {
		return nil, false
	}
	return t.clone(), true
}

// AllActiveNodes returns a snapshot copy of every currently-active node.
func (p *Projector) AllActiveNodes() []*NodeState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*NodeState, 0, len(p.nodes))
	for _, n := range p.nodes {
		if n.IsActive {
			out = append(out, n.clone())
		}
	}
	return out
}

// NodesWithKeyType returns every node holding at least min keys of the
// given type.
func (p *Projector) NodesWithKeyType(t ledger.KeyType, min uint32) []*NodeState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*NodeState, 0)
	for _, n := range p.nodes {
		if n.KeyBalances[t] >= min {
			out = append(out, n.clone())
		}
	}
	return out
}

// IsNodeInNetwork reports whether node is a current member of network.
func (p *Projector) IsNodeInNetwork(node NodeID, network NetworkID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	net, ok := p.networks[network]
	if !ok {
		return false
	}
	_, member := net.Members[node]
	return member
}

// NodeKeyBalance returns node's balance of the given key type.
func (p *Projector) NodeKeyBalance(node NodeID, t ledger.KeyType) uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n, ok := p.nodes[node]
	if !ok {
		return 0
	}
	return n.KeyBalances[t]
}

// AllNetworks returns a snapshot copy of every known Network.
func (p *Projector) AllNetworks() []*NetworkState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*NetworkState, 0, len(p.networks))
	for _, n := range p.networks {
		out = append(out, n.clone())
	}
	return out
}

// AllThings returns a snapshot copy of every known Thing.
func (p *Projector) AllThings() []*ThingState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*ThingState, 0, len(p.things))
	for _, t := range p.things {
		out = append(out, t.clone())
	}
	return out
}

// CurrentSnapshot reports projector-wide counters, analogous to
// ledger.Snapshot but from the derived-state side.
func (p *Projector) CurrentSnapshot() Snapshot {
	snap := p.led.CurrentSnapshot()
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Snapshot{
		Timestamp:        snap.Timestamp,
		Epoch:            snap.Epoch,
		LatestLedgerHash: snap.LatestHash,
		NodeCount:        len(p.nodes),
		NetworkCount:     len(p.networks),
		ThingCount:       len(p.things),
	}
}
