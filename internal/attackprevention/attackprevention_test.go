package attackprevention

import (
	"testing"

	"cashew/internal/crypto"
	"cashew/internal/ledger"
	"cashew/internal/reputation"
)

func nodeID(b byte) NodeID {
	var h crypto.Hash
	h[0] = b
	return h
}

func TestRateLimiterBlocksBurstOverflow(t *testing.T) {
	rl := NewRateLimiter(RateLimitPolicy{RequestsPerMinute: 60, Burst: 2})
	n := nodeID(1)
	if !rl.Allow(n) || !rl.Allow(n) {
		t.Fatalf("expected first two requests within burst to be allowed")
	}
	if rl.Allow(n) {
		t.Fatalf("expected third immediate request to be rate limited")
	}
	total, blocked := rl.Stats()
	if total != 3 || blocked != 1 {
		t.Fatalf("unexpected stats: total=%d blocked=%d", total, blocked)
	}
}

func TestRateLimiterResetClearsBucket(t *testing.T) {
	rl := NewRateLimiter(RateLimitPolicy{RequestsPerMinute: 60, Burst: 1})
	n := nodeID(2)
	rl.Allow(n)
	if rl.Allow(n) {
		t.Fatalf("expected second request to be blocked before reset")
	}
	rl.Reset(n)
	if !rl.Allow(n) {
		t.Fatalf("expected a fresh bucket to allow after reset")
	}
}

func TestSybilScoreRisesForFreshLowConnectivityNode(t *testing.T) {
	s := NewSybilDefense()
	score := s.SybilScore(0, 1000, 1010)
	if score < 0.7 {
		t.Fatalf("expected high suspicion for a 0-connection node 10s old, got %f", score)
	}
	established := s.SybilScore(10, 1000, 100000)
	if established >= score {
		t.Fatalf("expected an established well-connected node to score lower")
	}
}

func TestDetectGroupsFindsMatchingFingerprints(t *testing.T) {
	s := NewSybilDefense()
	a, b, c := nodeID(1), nodeID(2), nodeID(3)
	s.RecordActivity(a, "join")
	s.RecordActivity(a, "post")
	s.RecordActivity(b, "join")
	s.RecordActivity(b, "post")
	s.RecordActivity(c, "join")
	s.RecordActivity(c, "vote")

	groups := s.DetectGroups([]NodeID{a, b, c})
	if len(groups) != 1 || len(groups[0]) != 2 {
		t.Fatalf("expected one group of 2 matching nodes, got %+v", groups)
	}
}

func TestDDoSMitigationBlocksAtConnectionCap(t *testing.T) {
	d := NewDDoSMitigation()
	ip := "203.0.113.5"
	for i := 0; i < maxConnectionsPerIP; i++ {
		if !d.AllowConnection(ip, 100) {
			t.Fatalf("connection %d should be allowed under the cap", i)
		}
		d.RecordConnection(ip, 100)
	}
	if d.AllowConnection(ip, 100) {
		t.Fatalf("expected connection to be refused once at the per-IP cap")
	}
}

func TestDDoSMitigationBlockIPExpiry(t *testing.T) {
	d := NewDDoSMitigation()
	ip := "198.51.100.9"
	d.BlockIP(ip, "abuse", 1000, 60)
	if !d.IsBlocked(ip, 1030) {
		t.Fatalf("expected ip to be blocked within the block window")
	}
	if d.IsBlocked(ip, 1100) {
		t.Fatalf("expected block to have expired")
	}
	if n := d.CleanupExpiredBlocks(1100); n != 1 {
		t.Fatalf("expected 1 expired block cleaned up, got %d", n)
	}
}

func TestForkDetectorFlagsConflictingKey(t *testing.T) {
	f := NewForkDetector()
	n := nodeID(4)
	kp1, _ := crypto.GenerateKeyPair()
	kp2, _ := crypto.GenerateKeyPair()

	if f.DetectFork(n, kp1.Public, 100) {
		t.Fatalf("first key observed should not be a fork")
	}
	if !f.DetectFork(n, kp2.Public, 200) {
		t.Fatalf("expected a second distinct key for the same node to be flagged as a fork")
	}
	if f.ForkCount() != 1 {
		t.Fatalf("expected 1 detected fork, got %d", f.ForkCount())
	}
}

func TestForkDetectorSignatureConsistency(t *testing.T) {
	f := NewForkDetector()
	n := nodeID(5)
	kp, _ := crypto.GenerateKeyPair()
	msg := []byte("hello")
	sig := crypto.Sign(kp.Private, msg)

	f.RecordKey(n, kp.Public, 100)
	if !f.VerifySignatureConsistency(n, msg, sig) {
		t.Fatalf("expected signature under the recorded key to verify")
	}

	other, _ := crypto.GenerateKeyPair()
	badSig := crypto.Sign(other.Private, msg)
	if f.VerifySignatureConsistency(n, msg, badSig) {
		t.Fatalf("expected a signature under an unrecorded key to fail consistency check")
	}
}

func newTestCoordinator(t *testing.T) (*Coordinator, *ledger.Ledger) {
	t.Helper()
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	self := crypto.NodeIDFromPublicKey(kp.Public)
	led := ledger.New(ledger.Config{SelfID: self, PrivateKey: kp.Private})
	rep := reputation.New(led, nil)
	return New(rep, nil), led
}

func TestCoordinatorValidateRequestPenalizesOnRateLimit(t *testing.T) {
	c, led := newTestCoordinator(t)
	c.rateLimiter = NewRateLimiter(RateLimitPolicy{RequestsPerMinute: 60, Burst: 1})
	n := nodeID(6)

	if !c.ValidateRequest(n, "post") {
		t.Fatalf("expected first request within burst to be allowed")
	}
	if c.ValidateRequest(n, "post") {
		t.Fatalf("expected second immediate request to be rate limited")
	}
	events := led.EventsByType(ledger.ReputationUpdated)
	if len(events) != 1 {
		t.Fatalf("expected 1 reputation penalty event, got %d", len(events))
	}
}

func TestCoordinatorValidateSignatureDetectsFork(t *testing.T) {
	c, _ := newTestCoordinator(t)
	n := nodeID(7)
	kp1, _ := crypto.GenerateKeyPair()
	kp2, _ := crypto.GenerateKeyPair()
	msg := []byte("payload")

	sig1 := crypto.Sign(kp1.Private, msg)
	if !c.ValidateSignature(n, kp1.Public, msg, sig1, 100) {
		t.Fatalf("expected first key/signature pair to validate")
	}
	sig2 := crypto.Sign(kp2.Private, msg)
	if c.ValidateSignature(n, kp2.Public, msg, sig2, 200) {
		t.Fatalf("expected a conflicting key for the same node to fail validation")
	}
}

func TestCoordinatorStatisticsReflectActivity(t *testing.T) {
	c, _ := newTestCoordinator(t)
	n := nodeID(8)
	c.ValidateRequest(n, "view")
	stats := c.GetStatistics()
	if stats.TotalRequests != 1 {
		t.Fatalf("expected 1 total request recorded, got %d", stats.TotalRequests)
	}
}
