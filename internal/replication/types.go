// Package replication implements Cashew's replication job state machine and
// source selection (component C9): moving a Thing's bytes onto a new
// Network member until the network's replica quorum is satisfied. It holds
// a read reference into internal/network's Manager for membership and
// health, and emits THING_REPLICATED through the same ledger every other
// component writes to.
package replication

import (
	"cashew/internal/crypto"
	"cashew/internal/state"
)

type (
	NodeID      = crypto.Hash
	NetworkID   = crypto.Hash
	ContentHash = crypto.Hash
)

const (
	maxConcurrentJobs  = 5
	maxRetries         = 3
	jobTimeoutSeconds  = 3600
	jobGCAgeSeconds    = 3600
	reliabilityFloor   = 0.5
	addReplicaPriority = 10
	baseBackoffSeconds = 2 // exponential: 2, 4, 8 seconds after each failure
)

// JobStatus is a replication job's position in the spec §4.4 state
// machine: PENDING -> IN_PROGRESS -> VERIFYING -> COMPLETED, with FAILED
// and CANCELLED as side exits.
type JobStatus string

const (
	StatusPending    JobStatus = "PENDING"
	StatusInProgress JobStatus = "IN_PROGRESS"
	StatusVerifying  JobStatus = "VERIFYING"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
	StatusCancelled  JobStatus = "CANCELLED"
)

// Job is one in-flight (or terminal) replication of a Thing onto a target
// node, per spec §4.4.
type Job struct {
	ID               string
	ContentHash      ContentHash
	NetworkID        NetworkID
	SourceNode       NodeID
	TargetNode       NodeID
	Priority         int
	Status           JobStatus
	RequestTimestamp int64
	UpdatedAt        int64
	Attempts         int
	LastError        string
}

func (j *Job) clone() *Job {
	c := *j
	return &c
}

// isTerminal reports whether j has left the active state machine.
func (j *Job) isTerminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// backoffSeconds returns the exponential retry delay after attempts
// failures: 2, 4, 8 seconds, per spec §4.4's "exponential backoff".
func backoffSeconds(attempts int) int64 {
	d := int64(baseBackoffSeconds)
	for i := 1; i < attempts; i++ {
		d *= 2
	}
	return d
}

// ShouldAddReplicas implements spec §4.4's should_add_replicas(): health
// below HEALTHY and member_count below max.
func ShouldAddReplicas(net *state.NetworkState, healthyReplicaCount int) bool {
	h := classifyHealth(healthyReplicaCount, net.Quorum)
	unhealthy := h == "CRITICAL" || h == "DEGRADED"
	return unhealthy && len(net.Members) < net.Quorum.Max
}

// ShouldRemoveReplicas implements spec §4.4's should_remove_replicas():
// membership above max.
func ShouldRemoveReplicas(net *state.NetworkState) bool {
	return len(net.Members) > net.Quorum.Max
}

func classifyHealth(healthyReplicaCount int, q state.Quorum) string {
	switch {
	case healthyReplicaCount < q.Min:
		return "CRITICAL"
	case healthyReplicaCount < q.Target:
		return "DEGRADED"
	case healthyReplicaCount == q.Target:
		return "OPTIMAL"
	default:
		return "HEALTHY"
	}
}
