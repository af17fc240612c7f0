package reconcile

// DetectConflict compares a local and peer Claim at comparison time
// now (unix seconds) and returns the StateConflict per spec §4.5, or nil
// if the two claims are consistent (equal hash, or an epoch gap too
// small to call a fork).
func DetectConflict(local, peer Claim, now int64) *StateConflict {
	epochDiff := diff(local.Epoch, peer.Epoch)

	if epochDiff > epochForkThreshold {
		return &StateConflict{
			Peer:       peer.Peer,
			Epoch:      peer.Epoch,
			LocalHash:  local.Hash,
			RemoteHash: peer.Hash,
			Type:       EpochFork,
		}
	}

	if local.Epoch != peer.Epoch {
		// Within ordinary catch-up lag; the sync scheduler handles this,
		// not the conflict resolver.
		return nil
	}

	if local.Hash == peer.Hash {
		return nil
	}

	conflict := &StateConflict{
		Peer:       peer.Peer,
		Epoch:      peer.Epoch,
		LocalHash:  local.Hash,
		RemoteHash: peer.Hash,
	}

	switch {
	case peer.MaxTimestamp-now > timestampAnomalyTolerance:
		conflict.Type = TimestampAnomaly
	case peer.EventCount != local.EventCount:
		conflict.Type = MissingEvents
	default:
		conflict.Type = HashMismatch
	}
	return conflict
}

func diff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// SelectStrategy returns the fixed merge strategy for c's conflict type,
// per spec §4.5's table. When availablePeers is at least 3,
// QUORUM_CONSENSUS supersedes the table for HASH_MISMATCH and
// MISSING_EVENTS conflicts, per spec §4.5.
func SelectStrategy(c *StateConflict, availablePeers int) MergeStrategy {
	if availablePeers >= 3 && (c.Type == HashMismatch || c.Type == MissingEvents) {
		return QuorumConsensus
	}
	return strategyFor(c.Type)
}
