// Package attackprevention implements the advisory defense layer of
// SPEC_FULL.md §C.7: per-node rate limiting, a Sybil-pattern heuristic,
// a per-IP DDoS connection table, and identity-fork detection. None of
// these block protocol operations directly; they feed reputation deltas
// and connection-admission decisions, grounded on
// original_source/src/security/attack_prevention.{hpp,cpp}.
package attackprevention

import (
	"sync"

	"golang.org/x/time/rate"

	"cashew/internal/crypto"
)

// NodeID aliases the shared identifier type.
type NodeID = crypto.Hash

// RateLimitPolicy mirrors attack_prevention.hpp's RateLimitPolicy: a
// per-minute ceiling expressed as a token-bucket rate plus a burst
// allowance, built on golang.org/x/time/rate (the same limiter the
// teacher wires into core/virtual_machine.go's request path) rather
// than hand-rolling the bucket accounting the C++ original did.
type RateLimitPolicy struct {
	RequestsPerMinute float64
	Burst             int
}

// DefaultRateLimitPolicy matches attack_prevention.hpp's constructor
// defaults (60 req/min, burst 10).
func DefaultRateLimitPolicy() RateLimitPolicy {
	return RateLimitPolicy{RequestsPerMinute: 60, Burst: 10}
}

// RateLimiter is a per-identifier token-bucket limiter.
type RateLimiter struct {
	mu       sync.Mutex
	policy   RateLimitPolicy
	buckets  map[NodeID]*rate.Limiter
	total    uint64
	blocked  uint64
}

func NewRateLimiter(policy RateLimitPolicy) *RateLimiter {
	return &RateLimiter{policy: policy, buckets: make(map[NodeID]*rate.Limiter)}
}

// Allow reports whether identifier may make a request right now,
// counting it against the bucket regardless of outcome.
func (rl *RateLimiter) Allow(identifier NodeID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.total++
	b, ok := rl.buckets[identifier]
	if !ok {
		b = rate.NewLimiter(rate.Limit(rl.policy.RequestsPerMinute/60.0), rl.policy.Burst)
		rl.buckets[identifier] = b
	}
	if !b.Allow() {
		rl.blocked++
		return false
	}
	return true
}

// Reset drops the bucket for identifier, e.g. after a reputation reset.
func (rl *RateLimiter) Reset(identifier NodeID) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, identifier)
}

// Stats returns (total requests seen, requests blocked).
func (rl *RateLimiter) Stats() (total, blocked uint64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.total, rl.blocked
}

// CleanupStaleEntries drops idle buckets to bound memory, per
// attack_prevention.hpp's cleanup_stale_entries. A bucket is stale once
// it is fully refilled (no pending debt), since x/time/rate carries no
// last-access timestamp of its own.
func (rl *RateLimiter) CleanupStaleEntries() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for id, b := range rl.buckets {
		if b.Tokens() >= float64(rl.policy.Burst) {
			delete(rl.buckets, id)
			removed++
		}
	}
	return removed
}
