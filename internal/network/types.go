// Package network implements Cashew's Network membership, invitation, and
// quorum-health engine (component C8). Replica placement and the
// replication job state machine themselves live in internal/replication
// (C9), which holds a read reference back into this package's Manager for
// membership and health queries.
package network

import (
	"cashew/internal/crypto"
	"cashew/internal/state"
)

type (
	NodeID    = crypto.Hash
	NetworkID = crypto.Hash
)

const (
	invitationTTL             = 24 * 3600 // spec §4.4 default
	memberInactivityThreshold = 3600      // spec §4.4: no activity in 1h -> inactive
	reliabilityFloor          = 0.5       // spec §4.4: non-candidate below this
	minNetworkQuorum          = 3         // spec §6.5
	maxNetworkQuorum          = 20        // spec §6.5
)

// HealthStatus classifies a Network's replica health, per spec §4.4.
type HealthStatus uint8

const (
	HealthCritical HealthStatus = iota
	HealthDegraded
	HealthOptimal
	HealthHealthy
)

func (h HealthStatus) String() string {
	switch h {
	case HealthCritical:
		return "CRITICAL"
	case HealthDegraded:
		return "DEGRADED"
	case HealthOptimal:
		return "OPTIMAL"
	case HealthHealthy:
		return "HEALTHY"
	default:
		return "UNKNOWN"
	}
}

// ClassifyHealth implements spec §4.4's health table:
// < min -> CRITICAL, min..<target -> DEGRADED,
// = target -> OPTIMAL if all members active else HEALTHY, > target -> HEALTHY.
func ClassifyHealth(healthyReplicaCount int, q state.Quorum, allMembersActive bool) HealthStatus {
	switch {
	case healthyReplicaCount < q.Min:
		return HealthCritical
	case healthyReplicaCount < q.Target:
		return HealthDegraded
	case healthyReplicaCount == q.Target:
		if allMembersActive {
			return HealthOptimal
		}
		return HealthHealthy
	default:
		return HealthHealthy
	}
}

// ReliabilityFunc reports a node's reliability score in [0,1], used to
// gate replication-candidacy and source selection. internal/replication
// supplies the real implementation (tracking job success/failure); tests
// and early bootstrap default to a constant via Manager.SetReliabilityFunc.
type ReliabilityFunc func(NodeID) float64
