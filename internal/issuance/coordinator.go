// Package issuance implements Cashew's key-issuance policy coordinator
// (component C6): PoW, proof-of-contribution ("postake"), and hybrid
// issuance, subject to epoch caps and a per-node rate limit.
package issuance

import (
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"cashew/internal/crypto"
	"cashew/internal/keyregistry"
	"cashew/internal/ledger"
	"cashew/internal/state"
)

// Coordinator decides and records key issuance, generalizing the teacher's
// ledger-backed counter idiom from core/access_control.go (cache +
// ledger-as-source-of-truth) to epoch-scoped issuance counters, and its
// *big.Int difficulty comparisons from core/consensus.go to the
// leading-zero-bit PoW target tracked by DifficultyTracker.
type Coordinator struct {
	mu     sync.Mutex
	led    *ledger.Ledger
	st     *state.Projector
	reg    *keyregistry.Registry
	policy Policy
	diff   *DifficultyTracker
	log    *logrus.Logger

	lastIssuedAt map[ledger.NodeID]int64
	epochIssued  map[ledger.NodeID]map[uint64]uint32
}

func New(led *ledger.Ledger, st *state.Projector, reg *keyregistry.Registry, policy Policy, log *logrus.Logger) (*Coordinator, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Coordinator{
		led: led, st: st, reg: reg, policy: policy, log: log,
		diff:         NewDifficultyTracker(),
		lastIssuedAt: make(map[ledger.NodeID]int64),
		epochIssued:  make(map[ledger.NodeID]map[uint64]uint32),
	}, nil
}

func (c *Coordinator) checkRateLimitLocked(node ledger.NodeID, now int64) error {
	if last, ok := c.lastIssuedAt[node]; ok && now-last < c.policy.RateLimitSeconds {
		return fmt.Errorf("issuance: %s rate-limited, %ds remaining", node, c.policy.RateLimitSeconds-(now-last))
	}
	return nil
}

func (c *Coordinator) checkEpochCapLocked(node ledger.NodeID, epoch uint64, count uint32) error {
	issued := c.epochIssued[node][epoch]
	if issued+count > c.policy.EpochCapPerNode {
		return fmt.Errorf("issuance: %s would exceed epoch cap of %d (already issued %d)", node, c.policy.EpochCapPerNode, issued)
	}
	return nil
}

func (c *Coordinator) recordLocked(node ledger.NodeID, epoch uint64, count uint32, now int64) {
	c.lastIssuedAt[node] = now
	byEpoch, ok := c.epochIssued[node]
	if !ok {
		byEpoch = make(map[uint64]uint32)
		c.epochIssued[node] = byEpoch
	}
	byEpoch[epoch] += count
}

// RequestViaPow verifies a submitted PoW solution against the current
// epoch difficulty and, if it meets the target, issues count keys of kt to
// node. Emits POW_SOLUTION_SUBMITTED then KEY_ISSUED.
func (c *Coordinator) RequestViaPow(node ledger.NodeID, nonce []byte, epoch uint64, kt ledger.KeyType, count uint32, now int64, solveSeconds float64) (*ledger.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkRateLimitLocked(node, now); err != nil {
		return nil, err
	}
	if err := c.checkEpochCapLocked(node, epoch, count); err != nil {
		return nil, err
	}

	solutionHash := crypto.PoWSolutionHash(node, epoch, nonce)
	difficulty := c.diff.CurrentDifficulty()
	if !crypto.MeetsDifficulty(solutionHash, difficulty) {
		return nil, fmt.Errorf("issuance: PoW solution for %s does not meet difficulty %d", node, difficulty)
	}

	if _, err := c.led.AppendLocal(ledger.PowSolutionSubmitted, ledger.PowSolutionPayload{
		Epoch: epoch, Nonce: nonce, Difficulty: uint32(difficulty),
	}.Encode()); err != nil {
		return nil, fmt.Errorf("issuance: append pow solution: %w", err)
	}

	ev, err := c.led.AppendLocal(ledger.KeyIssued, ledger.KeyIssuancePayload{
		KeyType: kt, Count: count, Method: ledger.MethodPow, Proof: solutionHash,
	}.Encode())
	if err != nil {
		return nil, fmt.Errorf("issuance: append key issuance: %w", err)
	}

	c.recordLocked(node, epoch, count, now)
	c.reg.RecordIssuance(node, kt, ledger.MethodPow, now)
	c.diff.RecordSolve(solveSeconds)
	return ev, nil
}

// RequestViaPostake issues count keys of kt via proof-of-contribution,
// rejecting nodes with no track record or below-threshold contribution.
func (c *Coordinator) RequestViaPostake(node ledger.NodeID, kt ledger.KeyType, count uint32, epoch uint64, now int64) (*ledger.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isNewNode(node) {
		return nil, fmt.Errorf("issuance: %s is a new node, ineligible for postake issuance", node)
	}
	ns, ok := c.st.NodeState(node)
	if !ok || ns.ReputationScore < c.policy.PostakeContributionThreshold {
		return nil, fmt.Errorf("issuance: %s contribution score below threshold %d", node, c.policy.PostakeContributionThreshold)
	}
	if err := c.checkRateLimitLocked(node, now); err != nil {
		return nil, err
	}
	if err := c.checkEpochCapLocked(node, epoch, count); err != nil {
		return nil, err
	}

	ev, err := c.led.AppendLocal(ledger.KeyIssued, ledger.KeyIssuancePayload{
		KeyType: kt, Count: count, Method: ledger.MethodPostake,
	}.Encode())
	if err != nil {
		return nil, fmt.Errorf("issuance: append key issuance: %w", err)
	}
	c.recordLocked(node, epoch, count, now)
	c.reg.RecordIssuance(node, kt, ledger.MethodPostake, now)
	return ev, nil
}

// RequestHybrid combines a verified PoW solution with a 1.5x bonus
// multiplier (rounded), still subject to the epoch cap.
func (c *Coordinator) RequestHybrid(node ledger.NodeID, nonce []byte, epoch uint64, kt ledger.KeyType, count uint32, now int64, solveSeconds float64) (*ledger.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bonused := uint32(math.Round(float64(count) * c.policy.HybridBonusMultiplier))

	if err := c.checkRateLimitLocked(node, now); err != nil {
		return nil, err
	}
	if err := c.checkEpochCapLocked(node, epoch, bonused); err != nil {
		return nil, err
	}

	solutionHash := crypto.PoWSolutionHash(node, epoch, nonce)
	difficulty := c.diff.CurrentDifficulty()
	if !crypto.MeetsDifficulty(solutionHash, difficulty) {
		return nil, fmt.Errorf("issuance: PoW solution for %s does not meet difficulty %d", node, difficulty)
	}

	if _, err := c.led.AppendLocal(ledger.PowSolutionSubmitted, ledger.PowSolutionPayload{
		Epoch: epoch, Nonce: nonce, Difficulty: uint32(difficulty),
	}.Encode()); err != nil {
		return nil, fmt.Errorf("issuance: append pow solution: %w", err)
	}

	ev, err := c.led.AppendLocal(ledger.KeyIssued, ledger.KeyIssuancePayload{
		KeyType: kt, Count: bonused, Method: ledger.MethodHybrid, Proof: solutionHash,
	}.Encode())
	if err != nil {
		return nil, fmt.Errorf("issuance: append key issuance: %w", err)
	}

	c.recordLocked(node, epoch, bonused, now)
	c.reg.RecordIssuance(node, kt, ledger.MethodHybrid, now)
	c.diff.RecordSolve(solveSeconds)
	return ev, nil
}

// isNewNode mirrors spec §4.3's is_new_node(node): no uptime, no hosted
// things, no proof-of-contribution history.
func (c *Coordinator) isNewNode(node ledger.NodeID) bool {
	ns, ok := c.st.NodeState(node)
	if !ok {
		return true
	}
	return ns.UptimeSeconds == 0 && len(ns.HostedThings) == 0 && ns.PostakeContributions == 0
}

// Recommend reports the best issuance method for node, per spec §4.3: PoW
// for new nodes, otherwise hybrid once contribution clears 1.5x the
// threshold, postake once it clears the threshold, and PoW as the
// fallback for everyone else (spec names POSTAKE "or" HYBRID without an
// ordering; this coordinator treats HYBRID as the richer recommendation).
func (c *Coordinator) Recommend(node ledger.NodeID) RecommendedMethod {
	if c.isNewNode(node) {
		return RecommendPowOnly
	}
	ns, ok := c.st.NodeState(node)
	if !ok {
		return RecommendPowOnly
	}
	threshold := c.policy.PostakeContributionThreshold
	switch {
	case ns.ReputationScore >= threshold*3/2:
		return RecommendHybrid
	case ns.ReputationScore >= threshold:
		return RecommendPostakeOnly
	default:
		return RecommendPowOnly
	}
}
