package reputation

const (
	defaultTrustDepth  = 2
	transitiveDecay    = 0.5 // weight applied per additional hop
)

// DirectTrust returns the weight of the direct attester -> subject edge, if
// any.
func (m *Manager) DirectTrust(attester, subject NodeID) (int32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	edges, ok := m.trust[attester]
	if !ok {
		return 0, false
	}
	w, ok := edges[subject]
	return w, ok
}

// TransitiveTrust estimates from's trust in subject by walking the trust
// graph up to defaultTrustDepth hops, decaying weight by transitiveDecay
// per hop and tolerating cycles via a visited set (spec §9: "the trust
// graph is directed, may contain cycles" — path computations run on a
// point-in-time snapshot of the adjacency map, never mutate it).
func (m *Manager) TransitiveTrust(from, subject NodeID) float64 {
	m.mu.RLock()
	snapshot := make(map[NodeID]map[NodeID]int32, len(m.trust))
	for k, v := range m.trust {
		edges := make(map[NodeID]int32, len(v))
		for k2, v2 := range v {
			edges[k2] = v2
		}
		snapshot[k] = edges
	}
	m.mu.RUnlock()

	visited := map[NodeID]bool{from: true}
	return walkTrust(snapshot, from, subject, defaultTrustDepth, 1.0, visited)
}

func walkTrust(graph map[NodeID]map[NodeID]int32, from, target NodeID, depth int, weightScale float64, visited map[NodeID]bool) float64 {
	edges, ok := graph[from]
	if !ok || depth == 0 {
		return 0
	}
	if w, ok := edges[target]; ok {
		return float64(w) * weightScale
	}
	var best float64
	for next := range edges {
		if visited[next] {
			continue
		}
		visited[next] = true
		if v := walkTrust(graph, next, target, depth-1, weightScale*transitiveDecay, visited); v > best {
			best = v
		}
		delete(visited, next)
	}
	return best
}

// Attesters returns every node that has attested about subject, with their
// most recent weight.
func (m *Manager) Attesters(subject NodeID) map[NodeID]int32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[NodeID]int32)
	for attester, edges := range m.trust {
		if w, ok := edges[subject]; ok {
			out[attester] = w
		}
	}
	return out
}
