package reconcile

import (
	"fmt"

	"cashew/internal/ledger"
)

// Resolve applies strategy to conflict against the local ledger, given
// the peer's events (as returned by a SYNC_RESPONSE). It never mutates
// for PreferLocal or ManualReview.
func Resolve(led *ledger.Ledger, conflict *StateConflict, strategy MergeStrategy, remoteEvents []*ledger.Event) Resolution {
	switch strategy {
	case HighestWork:
		return resolveHighestWork(led, conflict, remoteEvents)
	case MergeBoth:
		return resolveMergeBoth(led, conflict, remoteEvents)
	case PreferLocal:
		return Resolution{Conflict: conflict, Strategy: strategy, Applied: false, Detail: "kept local chain"}
	case ManualReview:
		return Resolution{Conflict: conflict, Strategy: strategy, Applied: false, Detail: fmt.Sprintf("epoch fork at epoch %d vs peer %s, needs operator review", conflict.Epoch, conflict.Peer)}
	default:
		return Resolution{Conflict: conflict, Strategy: strategy, Applied: false, Detail: "unknown strategy"}
	}
}

// countKeyIssued counts every KEY_ISSUED event among events, whatever its
// issuance method, as the work measure for spec §4.5's HIGHEST_WORK rule.
func countKeyIssued(events []*ledger.Event) int {
	n := 0
	for _, e := range events {
		if e.Type == ledger.KeyIssued {
			n++
		}
	}
	return n
}

func resolveHighestWork(led *ledger.Ledger, conflict *StateConflict, remoteEvents []*ledger.Event) Resolution {
	localWork := len(led.EventsByType(ledger.KeyIssued))
	remoteWork := countKeyIssued(remoteEvents)

	if remoteWork <= localWork {
		return Resolution{Conflict: conflict, Strategy: HighestWork, Applied: false,
			Detail: fmt.Sprintf("local work %d >= remote work %d, kept local chain", localWork, remoteWork)}
	}

	adopted := adoptMissing(led, remoteEvents)
	return Resolution{Conflict: conflict, Strategy: HighestWork, Applied: true,
		Detail: fmt.Sprintf("remote work %d > local work %d, adopted %d events", remoteWork, localWork, adopted)}
}

func resolveMergeBoth(led *ledger.Ledger, conflict *StateConflict, remoteEvents []*ledger.Event) Resolution {
	adopted := adoptMissing(led, remoteEvents)
	return Resolution{Conflict: conflict, Strategy: MergeBoth, Applied: adopted > 0,
		Detail: fmt.Sprintf("merged %d previously-missing events by event_id union", adopted)}
}

// adoptMissing appends every remote event the local ledger does not
// already hold, skipping (not erroring on) duplicates and chain breaks
// it cannot yet place -- those will resolve on a later sync cycle once
// their prerequisites have arrived.
func adoptMissing(led *ledger.Ledger, remoteEvents []*ledger.Event) int {
	adopted := 0
	for _, e := range remoteEvents {
		if _, exists := led.Get(e.EventID); exists {
			continue
		}
		if err := led.AppendExternal(e); err == nil {
			adopted++
		}
	}
	return adopted
}
