package replication

import "cashew/internal/state"

// ReliabilityFunc reports a node's reliability score in [0,1]; supplied by
// the coordinator's owner (usually internal/network.Manager's reliability
// tracker).
type ReliabilityFunc func(NodeID) float64

// SelectSource implements spec §4.4's source selection: from hosts already
// serving contentHash that are also active members of network, pick the
// reliable (>= reliabilityFloor) one with the highest reliability score,
// breaking ties by NodeID lexicographic order.
func SelectSource(thing *state.ThingState, net *state.NetworkState, reliab ReliabilityFunc) (NodeID, bool) {
	var best NodeID
	var bestScore float64
	found := false

	for host := range thing.Hosts {
		if _, inNetwork := net.Members[host]; !inNetwork {
			continue
		}
		score := reliab(host)
		if score < reliabilityFloor {
			continue
		}
		switch {
		case !found:
			best, bestScore, found = host, score, true
		case score > bestScore:
			best, bestScore = host, score
		case score == bestScore && lessHash(host, best):
			best = host
		}
	}
	return best, found
}

// SelectTarget picks the network member with the lowest reliability that
// is not already hosting the thing, as the next replication target.
func SelectTarget(thing *state.ThingState, net *state.NetworkState, reliab ReliabilityFunc) (NodeID, bool) {
	var best NodeID
	var bestScore float64
	found := false

	for member := range net.Members {
		if _, already := thing.Hosts[member]; already {
			continue
		}
		score := reliab(member)
		switch {
		case !found:
			best, bestScore, found = member, score, true
		case score < bestScore:
			best, bestScore = member, score
		case score == bestScore && lessHash(member, best):
			best = member
		}
	}
	return best, found
}

func lessHash(a, b NodeID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// LowestReliabilityMembers returns up to n network members with the lowest
// reliability scores, for should_remove_replicas() eviction, per spec §4.4.
func LowestReliabilityMembers(net *state.NetworkState, reliab ReliabilityFunc, n int) []NodeID {
	type scored struct {
		id    NodeID
		score float64
	}
	all := make([]scored, 0, len(net.Members))
	for m := range net.Members {
		all = append(all, scored{m, reliab(m)})
	}
	for i := 1; i < len(all); i++ {
		for j := i; j > 0; j-- {
			if all[j].score < all[j-1].score || (all[j].score == all[j-1].score && lessHash(all[j].id, all[j-1].id)) {
				all[j-1], all[j] = all[j], all[j-1]
			} else {
				break
			}
		}
	}
	if n > len(all) {
		n = len(all)
	}
	out := make([]NodeID, n)
	for i := 0; i < n; i++ {
		out[i] = all[i].id
	}
	return out
}
