package reconcile

import (
	"crypto/ed25519"
	"testing"

	"github.com/sirupsen/logrus"

	"cashew/internal/crypto"
	"cashew/internal/ledger"
)

func newTestLedger(t *testing.T) (*ledger.Ledger, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	self := crypto.Sum(pub)
	return ledger.New(ledger.Config{SelfID: self, PrivateKey: priv, Logger: logrus.New()}), priv
}

func TestDetectConflictReturnsNilWhenHashesMatch(t *testing.T) {
	local := Claim{Epoch: 5, Hash: crypto.Sum([]byte("a")), EventCount: 10}
	peer := Claim{Epoch: 5, Hash: crypto.Sum([]byte("a")), EventCount: 10}
	if c := DetectConflict(local, peer, 1000); c != nil {
		t.Fatalf("expected no conflict, got %+v", c)
	}
}

func TestDetectConflictReturnsNilForOrdinaryCatchUpLag(t *testing.T) {
	local := Claim{Epoch: 5, Hash: crypto.Sum([]byte("a"))}
	peer := Claim{Epoch: 7, Hash: crypto.Sum([]byte("b"))}
	if c := DetectConflict(local, peer, 1000); c != nil {
		t.Fatalf("expected a small epoch gap to not be flagged as a conflict, got %+v", c)
	}
}

func TestDetectConflictFlagsEpochFork(t *testing.T) {
	local := Claim{Epoch: 5, Hash: crypto.Sum([]byte("a"))}
	peer := Claim{Epoch: 50, Hash: crypto.Sum([]byte("b"))}
	c := DetectConflict(local, peer, 1000)
	if c == nil || c.Type != EpochFork {
		t.Fatalf("expected EPOCH_FORK, got %+v", c)
	}
}

func TestDetectConflictFlagsTimestampAnomaly(t *testing.T) {
	now := int64(1_000_000)
	local := Claim{Epoch: 5, Hash: crypto.Sum([]byte("a")), EventCount: 10, MaxTimestamp: now}
	peer := Claim{Epoch: 5, Hash: crypto.Sum([]byte("b")), EventCount: 10, MaxTimestamp: now + 3600}
	c := DetectConflict(local, peer, now)
	if c == nil || c.Type != TimestampAnomaly {
		t.Fatalf("expected TIMESTAMP_ANOMALY, got %+v", c)
	}
}

func TestDetectConflictFlagsMissingEvents(t *testing.T) {
	now := int64(1_000_000)
	local := Claim{Epoch: 5, Hash: crypto.Sum([]byte("a")), EventCount: 10, MaxTimestamp: now}
	peer := Claim{Epoch: 5, Hash: crypto.Sum([]byte("b")), EventCount: 14, MaxTimestamp: now}
	c := DetectConflict(local, peer, now)
	if c == nil || c.Type != MissingEvents {
		t.Fatalf("expected MISSING_EVENTS, got %+v", c)
	}
}

func TestDetectConflictFlagsHashMismatch(t *testing.T) {
	now := int64(1_000_000)
	local := Claim{Epoch: 5, Hash: crypto.Sum([]byte("a")), EventCount: 10, MaxTimestamp: now}
	peer := Claim{Epoch: 5, Hash: crypto.Sum([]byte("b")), EventCount: 10, MaxTimestamp: now}
	c := DetectConflict(local, peer, now)
	if c == nil || c.Type != HashMismatch {
		t.Fatalf("expected HASH_MISMATCH, got %+v", c)
	}
}

func TestSelectStrategyFollowsTableBelowQuorum(t *testing.T) {
	cases := []struct {
		t    ConflictType
		want MergeStrategy
	}{
		{HashMismatch, HighestWork},
		{MissingEvents, MergeBoth},
		{TimestampAnomaly, PreferLocal},
		{EpochFork, ManualReview},
	}
	for _, c := range cases {
		got := SelectStrategy(&StateConflict{Type: c.t}, 1)
		if got != c.want {
			t.Fatalf("conflict %s: expected strategy %s, got %s", c.t, c.want, got)
		}
	}
}

func TestSelectStrategyPrefersQuorumConsensusWithEnoughPeers(t *testing.T) {
	got := SelectStrategy(&StateConflict{Type: HashMismatch}, 3)
	if got != QuorumConsensus {
		t.Fatalf("expected QUORUM_CONSENSUS with 3+ peers, got %s", got)
	}
	got = SelectStrategy(&StateConflict{Type: TimestampAnomaly}, 5)
	if got != PreferLocal {
		t.Fatalf("expected quorum override to not apply to TIMESTAMP_ANOMALY, got %s", got)
	}
}

func TestResolveHighestWorkAdoptsHeavierRemoteChain(t *testing.T) {
	led, _ := newTestLedger(t)
	if _, err := led.AppendLocal(ledger.NodeJoined, nil); err != nil {
		t.Fatal(err)
	}

	remotePub, remotePriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	remoteSelf := crypto.Sum(remotePub)
	led.RegisterKey(remoteSelf, remotePub)
	remoteLed := ledger.New(ledger.Config{SelfID: remoteSelf, PrivateKey: remotePriv, Logger: logrus.New()})

	var remoteEvents []*ledger.Event
	for i := 0; i < 5; i++ {
		e, err := remoteLed.AppendLocal(ledger.KeyIssued, nil)
		if err != nil {
			t.Fatal(err)
		}
		remoteEvents = append(remoteEvents, e)
	}

	conflict := &StateConflict{Peer: remoteSelf, Type: HashMismatch}
	res := Resolve(led, conflict, HighestWork, remoteEvents)
	if !res.Applied {
		t.Fatalf("expected heavier remote chain to be adopted: %+v", res)
	}
	if led.Count() != 6 {
		t.Fatalf("expected 6 events after adoption (1 local + 5 remote), got %d", led.Count())
	}
}

func TestResolveHighestWorkKeepsLocalWhenHeavier(t *testing.T) {
	led, _ := newTestLedger(t)
	for i := 0; i < 3; i++ {
		if _, err := led.AppendLocal(ledger.KeyIssued, nil); err != nil {
			t.Fatal(err)
		}
	}

	remotePub, remotePriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	remoteSelf := crypto.Sum(remotePub)
	remoteLed := ledger.New(ledger.Config{SelfID: remoteSelf, PrivateKey: remotePriv, Logger: logrus.New()})
	e, err := remoteLed.AppendLocal(ledger.KeyIssued, nil)
	if err != nil {
		t.Fatal(err)
	}

	conflict := &StateConflict{Peer: remoteSelf, Type: HashMismatch}
	res := Resolve(led, conflict, HighestWork, []*ledger.Event{e})
	if res.Applied {
		t.Fatalf("expected lighter remote chain to be rejected: %+v", res)
	}
	if led.Count() != 3 {
		t.Fatalf("expected local ledger untouched at 3 events, got %d", led.Count())
	}
}

func TestResolveMergeBothUnionsByEventID(t *testing.T) {
	led, _ := newTestLedger(t)
	if _, err := led.AppendLocal(ledger.NodeJoined, nil); err != nil {
		t.Fatal(err)
	}

	remotePub, remotePriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	remoteSelf := crypto.Sum(remotePub)
	led.RegisterKey(remoteSelf, remotePub)
	remoteLed := ledger.New(ledger.Config{SelfID: remoteSelf, PrivateKey: remotePriv, Logger: logrus.New()})
	e1, _ := remoteLed.AppendLocal(ledger.NodeJoined, nil)
	e2, _ := remoteLed.AppendLocal(ledger.NodeJoined, nil)

	conflict := &StateConflict{Peer: remoteSelf, Type: MissingEvents}
	res := Resolve(led, conflict, MergeBoth, []*ledger.Event{e1, e2})
	if !res.Applied {
		t.Fatalf("expected merge to apply: %+v", res)
	}
	if led.Count() != 3 {
		t.Fatalf("expected union of 1 local + 2 remote = 3 events, got %d", led.Count())
	}

	// Re-resolving with the same remote events must not double-count.
	res2 := Resolve(led, conflict, MergeBoth, []*ledger.Event{e1, e2})
	if res2.Applied {
		t.Fatalf("expected no-op on second merge of already-adopted events: %+v", res2)
	}
	if led.Count() != 3 {
		t.Fatalf("expected idempotent merge to leave count at 3, got %d", led.Count())
	}
}

func TestResolvePreferLocalNeverMutates(t *testing.T) {
	led, _ := newTestLedger(t)
	if _, err := led.AppendLocal(ledger.NodeJoined, nil); err != nil {
		t.Fatal(err)
	}
	conflict := &StateConflict{Type: TimestampAnomaly}
	res := Resolve(led, conflict, PreferLocal, nil)
	if res.Applied {
		t.Fatalf("PREFER_LOCAL must never apply a mutation: %+v", res)
	}
	if led.Count() != 1 {
		t.Fatalf("expected ledger untouched, got %d events", led.Count())
	}
}

func TestResolveManualReviewNeverMutates(t *testing.T) {
	led, _ := newTestLedger(t)
	conflict := &StateConflict{Type: EpochFork, Epoch: 100}
	res := Resolve(led, conflict, ManualReview, nil)
	if res.Applied {
		t.Fatalf("MANUAL_REVIEW must never apply a mutation: %+v", res)
	}
	if res.Detail == "" {
		t.Fatalf("expected a diagnostic detail message")
	}
}

func TestQuorumPicksStrictMajority(t *testing.T) {
	winner := EpochHashVote{Epoch: 10, Hash: crypto.Sum([]byte("winner"))}
	loser := EpochHashVote{Epoch: 10, Hash: crypto.Sum([]byte("loser"))}
	votes := []EpochHashVote{winner, winner, winner, loser}

	result := Quorum(votes)
	if !result.Agreed || result.Winner != winner {
		t.Fatalf("expected a clear majority winner, got %+v", result)
	}
	nonConforming := NonConformingVoters(votes, result)
	if len(nonConforming) != 1 || votes[nonConforming[0]] != loser {
		t.Fatalf("expected exactly the dissenting vote flagged, got %+v", nonConforming)
	}
}

func TestQuorumNoMajorityIsNotAgreed(t *testing.T) {
	a := EpochHashVote{Epoch: 10, Hash: crypto.Sum([]byte("a"))}
	b := EpochHashVote{Epoch: 10, Hash: crypto.Sum([]byte("b"))}
	votes := []EpochHashVote{a, b}
	result := Quorum(votes)
	if result.Agreed {
		t.Fatalf("expected a tie to not be agreed, got %+v", result)
	}
}
