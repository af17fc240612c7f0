package reputation

import (
	"sync"

	"github.com/sirupsen/logrus"

	"cashew/internal/crypto"
	"cashew/internal/ledger"
)

// Manager folds REPUTATION_UPDATED and ATTESTATION_CREATED events into
// per-node score breakdowns and a directed, cyclic-tolerant trust graph,
// per spec §9's "Cyclic graphs" guidance: edges are stored as a plain
// (from -> (to -> weight)) adjacency map rather than owned graph-node
// objects, so removal of a node never leaves dangling references.
type Manager struct {
	mu     sync.RWMutex
	led    *ledger.Ledger
	log    *logrus.Logger
	scores map[NodeID]*ScoreBreakdown
	trust  map[NodeID]map[NodeID]int32

	applied map[crypto.Hash]struct{}
	stopCh  chan struct{}
}

func New(led *ledger.Ledger, log *logrus.Logger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		led:     led,
		log:     log,
		scores:  make(map[NodeID]*ScoreBreakdown),
		trust:   make(map[NodeID]map[NodeID]int32),
		applied: make(map[crypto.Hash]struct{}),
		stopCh:  make(chan struct{}),
	}
}

// Rebuild clears all derived state and replays the ledger's history.
func (m *Manager) Rebuild() {
	m.mu.Lock()
	m.scores = make(map[NodeID]*ScoreBreakdown)
	m.trust = make(map[NodeID]map[NodeID]int32)
	m.applied = make(map[crypto.Hash]struct{})
	m.mu.Unlock()

	for _, e := range m.led.All() {
		m.Apply(e)
	}
}

// Run subscribes to the ledger and folds newly appended events until Stop.
func (m *Manager) Run() {
	ch := m.led.Subscribe()
	for {
		select {
		case <-m.stopCh:
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			m.Apply(e)
		}
	}
}

func (m *Manager) Stop() { close(m.stopCh) }

// Apply is idempotent, mirroring internal/state.Projector.Apply's
// duplicate-delivery guard.
func (m *Manager) Apply(e *ledger.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, done := m.applied[e.EventID]; done {
		return
	}
	m.applied[e.EventID] = struct{}{}

	switch e.Type {
	case ledger.ReputationUpdated:
		m.applyReputationUpdated(e)
	case ledger.AttestationCreated:
		m.applyAttestation(e)
	case ledger.VouchCreated:
		m.applyVouch(e)
	}
}

func (m *Manager) scoreLocked(id NodeID) *ScoreBreakdown {
	s, ok := m.scores[id]
	if !ok {
		s = newScoreBreakdown()
		m.scores[id] = s
	}
	return s
}

func (m *Manager) applyReputationUpdated(e *ledger.Event) {
	p, err := ledger.DecodeReputationUpdate(e.Payload)
	if err != nil {
		m.log.WithError(err).Warn("reputation: malformed ReputationUpdate payload, dropping")
		return
	}
	s := m.scoreLocked(p.Subject)
	s.Total = clampScore(s.Total + p.ScoreDelta)
	cat := categoryOf(p.Reason)
	switch cat {
	case CategoryHosting:
		s.Hosting += p.ScoreDelta
	case CategoryContribution:
		s.Contribution += p.ScoreDelta
	case CategoryVouching:
		s.Vouching += p.ScoreDelta
	case CategoryPenalty:
		s.Penalty += p.ScoreDelta
		if p.ScoreDelta < 0 {
			s.Violations++
		}
	}
	s.pushRing(RecentEvent{
		Timestamp: e.Timestamp, Delta: p.ScoreDelta, Category: cat,
		Reason: p.Reason, EventID: e.EventID,
	})
}

// applyAttestation records a directed trust edge attester -> subject with
// weight Score, overwriting any prior attestation between the same pair
// (only the most recent attestation counts, matching the ledger's
// append-only-but-latest-wins semantics used elsewhere for memberships).
func (m *Manager) applyAttestation(e *ledger.Event) {
	p, err := ledger.DecodeAttestation(e.Payload)
	if err != nil {
		m.log.WithError(err).Warn("reputation: malformed Attestation payload, dropping")
		return
	}
	edges, ok := m.trust[p.Attester]
	if !ok {
		edges = make(map[NodeID]int32)
		m.trust[p.Attester] = edges
	}
	edges[p.Subject] = p.Score
}

// applyVouch credits the voucher with a successful vouch. Spec §3 also
// tracks failed_vouches, but the source gives no signal for what makes a
// vouch retroactively "fail" (e.g. the vouchee's key later being
// revoked); until such a signal is defined, every recorded vouch counts
// as successful.
func (m *Manager) applyVouch(e *ledger.Event) {
	p, err := ledger.DecodeVouch(e.Payload)
	if err != nil {
		m.log.WithError(err).Warn("reputation: malformed Vouch payload, dropping")
		return
	}
	s := m.scoreLocked(p.Voucher)
	s.SuccessfulVouches++
}

// Score returns a read-only snapshot of node's reputation breakdown.
func (m *Manager) Score(node NodeID) (*ScoreBreakdown, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scores[node]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// RecordReputationUpdate appends a signed REPUTATION_UPDATED event for
// subject and folds it locally. The category is encoded as a "category:"
// prefix on reason per this package's convention.
func (m *Manager) RecordReputationUpdate(subject NodeID, delta int32, category Category, reason string, evidence crypto.Hash) (*ledger.Event, error) {
	fullReason := string(category) + ":" + reason
	ev, err := m.led.AppendLocal(ledger.ReputationUpdated, ledger.ReputationUpdatePayload{
		Subject: subject, ScoreDelta: delta, Reason: fullReason, Evidence: evidence,
	}.Encode())
	if err != nil {
		return nil, err
	}
	m.Apply(ev)
	return ev, nil
}

// RecordAttestation appends a signed ATTESTATION_CREATED event from
// attester about subject.
func (m *Manager) RecordAttestation(subject, attester NodeID, score int32, evidence crypto.Hash) (*ledger.Event, error) {
	return m.led.AppendLocal(ledger.AttestationCreated, ledger.AttestationPayload{
		Subject: subject, Attester: attester, Score: score, Evidence: evidence,
	}.Encode())
}
