package issuance

import (
	"testing"

	"cashew/internal/crypto"
	"cashew/internal/keyregistry"
	"cashew/internal/ledger"
	"cashew/internal/state"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *ledger.Ledger, *state.Projector, crypto.Hash) {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	id := crypto.NodeIDFromPublicKey(kp.Public)
	led := ledger.New(ledger.Config{SelfID: id, PrivateKey: kp.Private})
	st := state.New(led, nil)
	reg := keyregistry.New(led, st, nil)
	c, err := New(led, st, reg, DefaultPolicy(), nil)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return c, led, st, id
}

// findSolvingNonce brute-forces a nonce meeting the tracker's current
// (very low, freshly-initialized) difficulty — feasible because the
// default difficulty is small and deterministic in tests.
func findSolvingNonce(t *testing.T, node crypto.Hash, epoch uint64, difficulty int) []byte {
	t.Helper()
	for i := 0; i < 1_000_000; i++ {
		nonce := []byte{byte(i), byte(i >> 8), byte(i >> 16), byte(i >> 24)}
		if crypto.MeetsDifficulty(crypto.PoWSolutionHash(node, epoch, nonce), difficulty) {
			return nonce
		}
	}
	t.Fatalf("could not find a solving nonce at difficulty %d within budget", difficulty)
	return nil
}

func TestRequestViaPowIssuesKey(t *testing.T) {
	c, _, st, node := newTestCoordinator(t)
	nonce := findSolvingNonce(t, node, 1, c.diff.CurrentDifficulty())

	ev, err := c.RequestViaPow(node, nonce, 1, ledger.KeyService, 1, 1000, 5.0)
	if err != nil {
		t.Fatalf("request via pow: %v", err)
	}
	if ev.Type != ledger.KeyIssued {
		t.Fatalf("expected KeyIssued event, got %s", ev.Type)
	}
	st.Rebuild()
	if bal := st.NodeKeyBalance(node, ledger.KeyService); bal != 1 {
		t.Fatalf("expected balance 1, got %d", bal)
	}
}

func TestRequestViaPowRejectsBadSolution(t *testing.T) {
	c, _, _, node := newTestCoordinator(t)
	badNonce := []byte("definitely-not-a-solution")
	// A 16-bit default difficulty practically never matches an arbitrary
	// fixed string; treat an accidental match as test-environment noise.
	if crypto.MeetsDifficulty(crypto.PoWSolutionHash(node, 1, badNonce), c.diff.CurrentDifficulty()) {
		t.Skip("arbitrary nonce unexpectedly met difficulty target")
	}
	if _, err := c.RequestViaPow(node, badNonce, 1, ledger.KeyService, 1, 1000, 5.0); err == nil {
		t.Fatalf("expected bad PoW solution to be rejected")
	}
}

func TestRequestViaPowEnforcesRateLimit(t *testing.T) {
	c, _, _, node := newTestCoordinator(t)
	n1 := findSolvingNonce(t, node, 1, c.diff.CurrentDifficulty())
	if _, err := c.RequestViaPow(node, n1, 1, ledger.KeyService, 1, 1000, 5.0); err != nil {
		t.Fatalf("first request: %v", err)
	}
	n2 := findSolvingNonce(t, node, 1, c.diff.CurrentDifficulty())
	if _, err := c.RequestViaPow(node, n2, 1, ledger.KeyService, 1, 1010, 5.0); err == nil {
		t.Fatalf("expected second request within rate-limit window to fail")
	}
	n3 := findSolvingNonce(t, node, 1, c.diff.CurrentDifficulty())
	if _, err := c.RequestViaPow(node, n3, 1, ledger.KeyService, 1, 1000+DefaultPolicy().RateLimitSeconds, 5.0); err != nil {
		t.Fatalf("expected request after rate-limit window to succeed: %v", err)
	}
}

func TestRequestViaPowEnforcesEpochCap(t *testing.T) {
	c, _, _, node := newTestCoordinator(t)
	nonce := findSolvingNonce(t, node, 1, c.diff.CurrentDifficulty())
	epochCap := DefaultPolicy().EpochCapPerNode
	if _, err := c.RequestViaPow(node, nonce, 1, ledger.KeyService, epochCap+1, 1000, 5.0); err == nil {
		t.Fatalf("expected a request exceeding the epoch cap of %d to fail", epochCap)
	}
}

func TestRequestViaPostakeRejectsNewNode(t *testing.T) {
	c, _, _, node := newTestCoordinator(t)
	if _, err := c.RequestViaPostake(node, ledger.KeyService, 1, 1, 1000); err == nil {
		t.Fatalf("expected postake issuance to a brand-new node to fail")
	}
}

func TestRequestViaPostakeSucceedsForEstablishedNode(t *testing.T) {
	c, led, st, node := newTestCoordinator(t)
	if _, err := led.AppendLocal(ledger.ReputationUpdated, ledger.ReputationUpdatePayload{
		Subject: node, ScoreDelta: 150, Reason: "contribution",
	}.Encode()); err != nil {
		t.Fatal(err)
	}
	if _, err := led.AppendLocal(ledger.PostakeContribution, ledger.PostakeContributionPayload{
		Kind: "bandwidth", Amount: 1024,
	}.Encode()); err != nil {
		t.Fatal(err)
	}
	st.Rebuild()

	if _, err := c.RequestViaPostake(node, ledger.KeyService, 1, 1, 1000); err != nil {
		t.Fatalf("expected postake issuance to succeed for an established node: %v", err)
	}
	st.Rebuild()
	if bal := st.NodeKeyBalance(node, ledger.KeyService); bal != 1 {
		t.Fatalf("expected balance 1, got %d", bal)
	}
}

func TestRequestHybridAppliesBonusMultiplier(t *testing.T) {
	c, _, st, node := newTestCoordinator(t)
	nonce := findSolvingNonce(t, node, 1, c.diff.CurrentDifficulty())

	if _, err := c.RequestHybrid(node, nonce, 1, ledger.KeyService, 2, 1000, 5.0); err != nil {
		t.Fatalf("request hybrid: %v", err)
	}
	st.Rebuild()
	// 2 * 1.5 = 3, rounded.
	if bal := st.NodeKeyBalance(node, ledger.KeyService); bal != 3 {
		t.Fatalf("expected hybrid-bonused balance 3, got %d", bal)
	}
}

func TestRecommendPowOnlyForNewNode(t *testing.T) {
	c, _, _, node := newTestCoordinator(t)
	if got := c.Recommend(node); got != RecommendPowOnly {
		t.Fatalf("expected POW_ONLY for a new node, got %s", got)
	}
}

func TestPolicyValidateRejectsUnbalancedWeights(t *testing.T) {
	p := DefaultPolicy()
	p.PowWeight = 0.9
	if err := p.Validate(); err == nil {
		t.Fatalf("expected validation to reject pow_weight+postake_weight != 1.0")
	}
}

func TestDifficultyTrackerRetargetsTowardTarget(t *testing.T) {
	d := NewDifficultyTracker()
	start := d.CurrentDifficulty()
	for i := 0; i < retargetWindow; i++ {
		d.RecordSolve(5.0) // solving far faster than the 60s target
	}
	if d.CurrentDifficulty() <= start {
		t.Fatalf("expected difficulty to increase when solves are much faster than target")
	}
}
