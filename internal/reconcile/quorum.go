package reconcile

import "cashew/internal/crypto"

// EpochHashVote is one peer's claimed (epoch, hash) pair, per spec
// §4.5's QUORUM_CONSENSUS strategy.
type EpochHashVote struct {
	Epoch uint64
	Hash  crypto.Hash
}

// QuorumResult is the outcome of tallying votes across at least 3 peers.
type QuorumResult struct {
	Winner EpochHashVote
	Votes  int
	Total  int
	Agreed bool // true iff Winner holds a strict majority (>50%)
}

// Quorum tallies votes (one per peer, including the local node's own
// claim if it chooses to vote) and returns the majority (epoch, hash)
// pair. Per spec §4.5, this strategy is only meaningful when at least 3
// peers are available; Quorum still tallies fewer, but callers should
// check len(votes) >= 3 via SelectStrategy before invoking it.
func Quorum(votes []EpochHashVote) QuorumResult {
	tally := make(map[EpochHashVote]int, len(votes))
	for _, v := range votes {
		tally[v]++
	}
	var best EpochHashVote
	bestCount := 0
	for v, count := range tally {
		if count > bestCount {
			best, bestCount = v, count
		}
	}
	return QuorumResult{
		Winner: best,
		Votes:  bestCount,
		Total:  len(votes),
		Agreed: len(votes) > 0 && bestCount*2 > len(votes),
	}
}

// NonConformingVoters returns the indices into votes whose vote does not
// match result.Winner -- the nodes that must adopt PREFER_REMOTE
// semantics for their diverging events, per spec §4.5.
func NonConformingVoters(votes []EpochHashVote, result QuorumResult) []int {
	var out []int
	for i, v := range votes {
		if v != result.Winner {
			out = append(out, i)
		}
	}
	return out
}
