package attackprevention

import (
	"crypto/ed25519"

	"github.com/sirupsen/logrus"

	"cashew/internal/crypto"
	"cashew/internal/reputation"
)

// Coordinator unifies rate limiting, Sybil defense, DDoS mitigation, and
// fork detection behind a single admission surface, per
// attack_prevention.hpp's AttackPreventionCoordinator. It is advisory:
// callers consult it before admitting a connection or request, and its
// findings feed reputation penalties rather than directly mutating
// ledger state.
type Coordinator struct {
	reputation *reputation.Manager
	log        *logrus.Logger

	rateLimiter *RateLimiter
	sybil       *SybilDefense
	ddos        *DDoSMitigation
	forks       *ForkDetector

	sybilEnabled bool
	ddosEnabled  bool
	forkEnabled  bool

	lastCleanup int64
}

func New(rep *reputation.Manager, log *logrus.Logger) *Coordinator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Coordinator{
		reputation:   rep,
		log:          log,
		rateLimiter:  NewRateLimiter(DefaultRateLimitPolicy()),
		sybil:        NewSybilDefense(),
		ddos:         NewDDoSMitigation(),
		forks:        NewForkDetector(),
		sybilEnabled: true,
		ddosEnabled:  true,
		forkEnabled:  true,
	}
}

func (c *Coordinator) EnableSybilDefense(enable bool) { c.sybilEnabled = enable }
func (c *Coordinator) EnableDDoSMitigation(enable bool) { c.ddosEnabled = enable }
func (c *Coordinator) EnableForkDetection(enable bool)  { c.forkEnabled = enable }

// ValidateIncomingConnection checks the DDoS table before a new
// connection from ip/node is admitted.
func (c *Coordinator) ValidateIncomingConnection(ip string, node NodeID, now int64) bool {
	if !c.ddosEnabled {
		return true
	}
	return c.ddos.AllowConnection(ip, now)
}

func (c *Coordinator) OnConnectionEstablished(ip string, node NodeID, now int64) {
	c.ddos.RecordConnection(ip, now)
}

func (c *Coordinator) OnConnectionClosed(ip string) {
	c.ddos.CloseConnection(ip)
}

// ValidateRequest checks node's rate limit for requestType.
func (c *Coordinator) ValidateRequest(node NodeID, requestType string) bool {
	ok := c.rateLimiter.Allow(node)
	if !ok {
		c.penalize(node, "rate_limit_exceeded:"+requestType)
	}
	return ok
}

// ValidateNewIdentity checks powProof against minPowBits using
// internal/crypto's PoW primitives, matching
// attack_prevention.hpp's validate_new_identity.
func (c *Coordinator) ValidateNewIdentity(node NodeID, epoch uint64, nonce []byte) bool {
	if !c.sybilEnabled {
		return true
	}
	h := crypto.PoWSolutionHash(node, epoch, nonce)
	return crypto.MeetsDifficulty(h, c.sybil.minPowBits)
}

// ValidateSignature checks signature consistency via the fork detector,
// penalizing reputation and marking node forked on mismatch.
func (c *Coordinator) ValidateSignature(node NodeID, claimedKey ed25519.PublicKey, msg, sig []byte, now int64) bool {
	if !c.forkEnabled {
		return crypto.Verify(claimedKey, msg, sig)
	}
	if c.forks.DetectFork(node, claimedKey, now) {
		c.penalize(node, "identity_fork_detected")
		return false
	}
	return c.forks.VerifySignatureConsistency(node, msg, sig)
}

func (c *Coordinator) penalize(node NodeID, reason string) {
	if c.reputation == nil {
		return
	}
	if _, err := c.reputation.RecordReputationUpdate(node, -10, reputation.CategoryPenalty, reason, crypto.Hash{}); err != nil {
		c.log.WithError(err).WithField("node", node).Warn("attackprevention: failed to record reputation penalty")
	}
}

// IsUnderAttack reports whether the DDoS table currently sees an
// attack-rate connection pattern.
func (c *Coordinator) IsUnderAttack(now int64) bool {
	return c.ddosEnabled && c.ddos.DetectAttackPattern(now)
}

// ThreatLevel returns the DDoS mitigator's blocked/total ratio as an
// overall severity estimate, per attack_prevention.hpp's
// get_overall_threat_level.
func (c *Coordinator) ThreatLevel() float64 {
	return c.ddos.ThreatLevel()
}

// Tick runs periodic maintenance: stale rate-limit bucket eviction and
// expired-block cleanup, per attack_prevention.hpp's tick().
func (c *Coordinator) Tick(now int64) {
	c.rateLimiter.CleanupStaleEntries()
	c.ddos.CleanupExpiredBlocks(now)
	c.lastCleanup = now
}

// Statistics mirrors attack_prevention.hpp's Statistics snapshot.
type Statistics struct {
	TotalRequests    uint64
	BlockedRequests  uint64
	BlockedIPs       int
	DetectedForks    int
	ThreatLevel      float64
}

func (c *Coordinator) GetStatistics() Statistics {
	total, blocked := c.rateLimiter.Stats()
	return Statistics{
		TotalRequests:   total,
		BlockedRequests: blocked,
		BlockedIPs:      c.ddos.BlockedIPCount(),
		DetectedForks:   c.forks.ForkCount(),
		ThreatLevel:     c.ddos.ThreatLevel(),
	}
}

// RateLimiter, SybilDefense, DDoSMitigation, ForkDetector expose the
// coordinator's component subsystems for direct inspection in tests and
// by internal/gateway's connection-admission path.
func (c *Coordinator) RateLimiter() *RateLimiter       { return c.rateLimiter }
func (c *Coordinator) SybilDefense() *SybilDefense     { return c.sybil }
func (c *Coordinator) DDoSMitigation() *DDoSMitigation { return c.ddos }
func (c *Coordinator) ForkDetector() *ForkDetector      { return c.forks }
