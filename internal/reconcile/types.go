// Package reconcile implements Cashew's gossip conflict detection and
// merge-strategy selection (components C11/C12's reconciliation half),
// per spec §4.5. It is a pure decision layer: detection and strategy
// selection never mutate the ledger directly, and resolution only calls
// through to ledger.Ledger's own append/validate seams -- mirroring
// core/network.go's separation between transport (network.go) and the
// orphan-block reconciliation logic layered on top of it.
package reconcile

import (
	"cashew/internal/crypto"
	"cashew/internal/ledger"
)

type NodeID = crypto.Hash

// epochForkThreshold is how far two peers' claimed epochs must diverge
// before the gap is treated as a fork rather than ordinary catch-up lag.
const epochForkThreshold = checkpointEveryEpochs

// checkpointEveryEpochs mirrors gossip's own checkpoint cadence (spec
// §4.5: "every 10 epochs"), duplicated here to avoid an import of
// internal/gossip from this decision-only package.
const checkpointEveryEpochs = 10

// timestampAnomalyTolerance matches spec §4.5's "remote has events > 5
// min in the future".
const timestampAnomalyTolerance = 5 * 60

// ConflictType tags a detected StateConflict, per spec §4.5.
type ConflictType uint8

const (
	HashMismatch ConflictType = iota + 1
	MissingEvents
	TimestampAnomaly
	EpochFork
)

func (c ConflictType) String() string {
	switch c {
	case HashMismatch:
		return "HASH_MISMATCH"
	case MissingEvents:
		return "MISSING_EVENTS"
	case TimestampAnomaly:
		return "TIMESTAMP_ANOMALY"
	case EpochFork:
		return "EPOCH_FORK"
	default:
		return "UNKNOWN"
	}
}

// MergeStrategy is the resolution chosen for a ConflictType, per spec
// §4.5's selection table.
type MergeStrategy uint8

const (
	HighestWork MergeStrategy = iota + 1
	MergeBoth
	PreferLocal
	ManualReview
	QuorumConsensus
)

func (s MergeStrategy) String() string {
	switch s {
	case HighestWork:
		return "HIGHEST_WORK"
	case MergeBoth:
		return "MERGE_BOTH"
	case PreferLocal:
		return "PREFER_LOCAL"
	case ManualReview:
		return "MANUAL_REVIEW"
	case QuorumConsensus:
		return "QUORUM_CONSENSUS"
	default:
		return "UNKNOWN"
	}
}

// strategyFor implements spec §4.5's fixed conflict -> strategy table.
func strategyFor(t ConflictType) MergeStrategy {
	switch t {
	case HashMismatch:
		return HighestWork
	case MissingEvents:
		return MergeBoth
	case TimestampAnomaly:
		return PreferLocal
	case EpochFork:
		return ManualReview
	default:
		return ManualReview
	}
}

// Claim summarizes one ledger's state at the moment of comparison,
// whether local or peer-advertised.
type Claim struct {
	Peer         NodeID // zero for the local claim
	Epoch        uint64
	Hash         crypto.Hash
	EventCount   int
	MaxTimestamp int64
}

// LocalClaim builds a Claim from the local ledger.
func LocalClaim(led *ledger.Ledger) Claim {
	return Claim{
		Epoch:        led.CurrentEpoch(),
		Hash:         led.LatestHash(),
		EventCount:   led.Count(),
		MaxTimestamp: maxTimestamp(led.All()),
	}
}

func maxTimestamp(events []*ledger.Event) int64 {
	var max int64
	for _, e := range events {
		if e.Timestamp > max {
			max = e.Timestamp
		}
	}
	return max
}

// StateConflict is spec §4.5's conflict record.
type StateConflict struct {
	Peer       NodeID
	Epoch      uint64
	LocalHash  crypto.Hash
	RemoteHash crypto.Hash
	Type       ConflictType
}

// Resolution records what happened when a conflict was (or was not)
// resolved.
type Resolution struct {
	Conflict *StateConflict
	Strategy MergeStrategy
	Applied  bool
	Detail   string
}
