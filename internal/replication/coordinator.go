package replication

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"cashew/internal/crypto"
	"cashew/internal/ledger"
	"cashew/internal/network"
	"cashew/internal/state"
)

// StreamFunc fetches the full bytes of contentHash from source, verifying
// is left to the coordinator's VERIFYING step. internal/node supplies one
// backed by the local content store; tests supply a stub.
type StreamFunc func(source NodeID, contentHash ContentHash) ([]byte, error)

// Coordinator owns the replication job queue and drives jobs through the
// PENDING -> IN_PROGRESS -> VERIFYING -> COMPLETED state machine, per spec
// §4.4. Job promotion is serialized by Coordinator's own lock so that two
// workers never hold the same job (spec §5).
type Coordinator struct {
	mu      sync.Mutex
	led     *ledger.Ledger
	st      *state.Projector
	net     *network.Manager
	reliab  ReliabilityFunc
	stream  StreamFunc
	log     *logrus.Logger
	jobs    map[string]*Job
	running int // count of jobs currently IN_PROGRESS or VERIFYING
}

func New(led *ledger.Ledger, st *state.Projector, net *network.Manager, reliab ReliabilityFunc, stream StreamFunc, log *logrus.Logger) *Coordinator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if reliab == nil {
		reliab = func(NodeID) float64 { return 1.0 }
	}
	return &Coordinator{
		led: led, st: st, net: net, reliab: reliab, stream: stream, log: log,
		jobs: make(map[string]*Job),
	}
}

// Enqueue adds a new PENDING job for contentHash onto network, sourced
// from source and destined for target.
func (c *Coordinator) Enqueue(contentHash ContentHash, networkID NetworkID, source, target NodeID, priority int, now int64) *Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	j := &Job{
		ID: uuid.NewString(), ContentHash: contentHash, NetworkID: networkID,
		SourceNode: source, TargetNode: target, Priority: priority,
		Status: StatusPending, RequestTimestamp: now, UpdatedAt: now,
	}
	c.jobs[j.ID] = j
	return j.clone()
}

// Job returns a snapshot copy of the job by ID.
func (c *Coordinator) Job(id string) (*Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[id]
	if !ok {
		return nil, false
	}
	return j.clone(), true
}

// Jobs returns a snapshot copy of every tracked job.
func (c *Coordinator) Jobs() []*Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Job, 0, len(c.jobs))
	for _, j := range c.jobs {
		out = append(out, j.clone())
	}
	return out
}

// Cancel moves a PENDING or IN_PROGRESS job to CANCELLED.
func (c *Coordinator) Cancel(id string, now int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[id]
	if !ok {
		return fmt.Errorf("replication: unknown job %s", id)
	}
	if j.isTerminal() {
		return fmt.Errorf("replication: job %s is already terminal (%s)", id, j.Status)
	}
	if j.Status == StatusInProgress || j.Status == StatusVerifying {
		c.running--
	}
	j.Status, j.UpdatedAt = StatusCancelled, now
	return nil
}

// popNextLocked selects the highest-priority PENDING job, ties broken by
// earliest RequestTimestamp, and promotes it to IN_PROGRESS iff
// maxConcurrentJobs has not been reached. Must be called with c.mu held.
func (c *Coordinator) popNextLocked(now int64) *Job {
	if c.running >= maxConcurrentJobs {
		return nil
	}
	var best *Job
	for _, j := range c.jobs {
		if j.Status != StatusPending {
			continue
		}
		if j.Attempts > 0 && now-j.UpdatedAt < backoffSeconds(j.Attempts) {
			continue // still within backoff window
		}
		if best == nil ||
			j.Priority > best.Priority ||
			(j.Priority == best.Priority && j.RequestTimestamp < best.RequestTimestamp) {
			best = j
		}
	}
	if best == nil {
		return nil
	}
	best.Status, best.UpdatedAt = StatusInProgress, now
	c.running++
	return best
}

// RunOne pops and fully drives a single job through IN_PROGRESS ->
// VERIFYING -> COMPLETED/FAILED. Returns false if there was no eligible
// job to run.
func (c *Coordinator) RunOne(now int64) bool {
	c.mu.Lock()
	j := c.popNextLocked(now)
	c.mu.Unlock()
	if j == nil {
		return false
	}

	data, err := c.stream(j.SourceNode, j.ContentHash)
	c.mu.Lock()
	live := c.jobs[j.ID]
	if live == nil || live.Status != StatusInProgress {
		c.mu.Unlock()
		return true // cancelled out from under us
	}
	if err != nil {
		c.failLocked(live, now, err.Error())
		c.mu.Unlock()
		return true
	}
	live.Status, live.UpdatedAt = StatusVerifying, now
	c.mu.Unlock()

	ok := crypto.Sum(data) == j.ContentHash

	c.mu.Lock()
	defer c.mu.Unlock()
	live = c.jobs[j.ID]
	if live == nil || live.Status != StatusVerifying {
		return true
	}
	if !ok {
		c.failLocked(live, now, "verification mismatch: recomputed hash does not match thing_hash")
		return true
	}
	live.Status, live.UpdatedAt = StatusCompleted, now
	c.running--
	if _, err := c.led.AppendLocal(ledger.ThingReplicated, ledger.ThingReplicationPayload{
		ContentHash: live.ContentHash, NetworkID: live.NetworkID, Host: live.TargetNode, Size: uint64(len(data)),
	}.Encode()); err != nil {
		c.log.WithError(err).Warn("replication: failed to emit THING_REPLICATED")
	}
	return true
}

// failLocked records a failed attempt, reverting to PENDING for another
// try until maxRetries attempts have failed, then terminal FAILED. Must be
// called with c.mu held on a running job; it decrements c.running itself,
// so callers must not.
func (c *Coordinator) failLocked(j *Job, now int64, reason string) {
	c.running--
	j.Attempts++
	j.LastError = reason
	j.UpdatedAt = now
	if j.Attempts >= maxRetries {
		j.Status = StatusFailed
		return
	}
	j.Status = StatusPending // re-selects a fresh source on the next pop
}

// GC removes terminal jobs older than jobGCAgeSeconds, per spec §4.4.
func (c *Coordinator) GC(now int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, j := range c.jobs {
		if j.isTerminal() && now-j.UpdatedAt > jobGCAgeSeconds {
			delete(c.jobs, id)
			removed++
		}
	}
	return removed
}

// Tick implements spec §4.4's per-network quorum adjustment: enqueue
// REPLICATION jobs when should_add_replicas(), mark members for removal
// when should_remove_replicas().
func (c *Coordinator) Tick(networkID NetworkID, healthyReplicaCount int, now int64) error {
	net, ok := c.st.NetworkState(networkID)
	if !ok {
		return fmt.Errorf("replication: unknown network %s", networkID)
	}
	thing, ok := c.st.ThingState(net.ThingHash)
	if !ok {
		return fmt.Errorf("replication: unknown thing %s for network %s", net.ThingHash, networkID)
	}

	if ShouldAddReplicas(net, healthyReplicaCount) {
		source, haveSource := SelectSource(thing, net, c.reliab)
		target, haveTarget := SelectTarget(thing, net, c.reliab)
		if haveSource && haveTarget {
			c.Enqueue(net.ThingHash, networkID, source, target, addReplicaPriority, now)
		}
	}
	if ShouldRemoveReplicas(net) {
		excess := len(net.Members) - net.Quorum.Max
		for _, victim := range LowestReliabilityMembers(net, c.reliab, excess) {
			if _, err := c.net.RemoveMember(networkID, victim, "quorum_shrink"); err != nil {
				c.log.WithError(err).Warn("replication: failed to remove member for quorum shrink")
			}
		}
	}
	return nil
}
