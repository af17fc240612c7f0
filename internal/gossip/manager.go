package gossip

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"cashew/internal/crypto"
	"cashew/internal/ledger"
)

const (
	revocationsTopic = "cashew/revocations"
	checkpointsTopic = "cashew/checkpoints"
)

// RevocationHandler decodes and applies a gossiped revocation update; the
// concrete decode/verify/apply logic lives in internal/access, which owns
// RevocationEntry. Kept as a hook so gossip need not import access.
type RevocationHandler func(payload []byte) error

// Manager drives push-fanout broadcast and the periodic sync scheduler
// over a Transport, per spec §4.5. It holds its own mutex for peer sync
// state, separate from the ledger's and the projector's, per spec §5's
// locking discipline.
type Manager struct {
	transport Transport
	led       *ledger.Ledger
	log       *logrus.Logger

	mu    sync.RWMutex
	peers map[NodeID]*PeerSyncState

	seenMu sync.Mutex
	seen   map[crypto.Hash]int64

	onRevocation RevocationHandler

	running int32
	stopCh  chan struct{}
	wg      sync.WaitGroup

	rng   *rand.Rand
	rngMu sync.Mutex
}

// New constructs a Manager bound to transport and the local ledger.
func New(transport Transport, led *ledger.Ledger, log *logrus.Logger) *Manager {
	return &Manager{
		transport: transport,
		led:       led,
		log:       log,
		peers:     make(map[NodeID]*PeerSyncState),
		seen:      make(map[crypto.Hash]int64),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRevocationHandler installs the callback used to apply inbound
// RevocationBroadcast payloads.
func (m *Manager) SetRevocationHandler(h RevocationHandler) {
	m.onRevocation = h
}

// Start subscribes to locally-appended ledger events and inbound gossip
// topics, and launches the periodic scheduler. It is idempotent.
func (m *Manager) Start() error {
	if !atomic.CompareAndSwapInt32(&m.running, 0, 1) {
		return nil
	}
	m.stopCh = make(chan struct{})

	revIn, err := m.transport.Subscribe(revocationsTopic)
	if err != nil {
		atomic.StoreInt32(&m.running, 0)
		return err
	}
	checkpointIn, err := m.transport.Subscribe(checkpointsTopic)
	if err != nil {
		atomic.StoreInt32(&m.running, 0)
		return err
	}
	directIn, err := m.transport.Subscribe("direct")
	if err != nil {
		atomic.StoreInt32(&m.running, 0)
		return err
	}

	localEvents := m.led.Subscribe()

	m.wg.Add(4)
	go m.dispatchLoop(revIn)
	go m.dispatchLoop(checkpointIn)
	go m.dispatchLoop(directIn)
	go m.broadcastLocalLoop(localEvents)
	m.wg.Add(1)
	go m.schedulerLoop()

	return nil
}

// Stop signals every background loop to exit and waits for them,
// satisfying spec §5's "checks running at the head of each iteration"
// cancellation contract.
func (m *Manager) Stop() {
	if !atomic.CompareAndSwapInt32(&m.running, 1, 0) {
		return
	}
	close(m.stopCh)
	m.wg.Wait()
}

// dispatchLoop decodes and routes inbound envelopes until ch closes or a
// stop is requested.
func (m *Manager) dispatchLoop(ch <-chan InboundMessage) {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			env, err := decodeEnvelope(msg.Payload)
			if err != nil {
				m.log.Warnf("gossip: malformed envelope from %s: %v", msg.From, err)
				continue
			}
			m.handleEnvelope(msg.From, env)
		}
	}
}

// handleEnvelope dedupes by message_id, per spec §4.5 ("recipients dedupe
// by event_id before calling append_external"), extended to all message
// kinds.
func (m *Manager) handleEnvelope(from string, env *Envelope) {
	m.seenMu.Lock()
	if _, dup := m.seen[env.MessageID]; dup {
		m.seenMu.Unlock()
		return
	}
	m.seen[env.MessageID] = time.Now().Unix()
	m.seenMu.Unlock()

	switch env.Type {
	case EventBroadcast:
		e, err := ledger.Decode(env.Payload)
		if err != nil {
			m.log.Warnf("gossip: decode event from %s: %v", from, err)
			return
		}
		if err := m.led.AppendExternal(e); err != nil {
			m.log.Debugf("gossip: append_external from %s: %v", from, err)
			return
		}
	case SyncRequest:
		req, err := decodeSyncRequest(env.Payload)
		if err != nil {
			m.log.Warnf("gossip: decode sync request from %s: %v", from, err)
			return
		}
		m.respondToSyncRequest(from, req)
	case SyncResponse:
		events, err := decodeSyncResponse(env.Payload)
		if err != nil {
			m.log.Warnf("gossip: decode sync response from %s: %v", from, err)
			return
		}
		for _, e := range events {
			if err := m.led.AppendExternal(e); err != nil {
				m.log.Debugf("gossip: append_external (sync) from %s: %v", from, err)
			}
		}
		m.recordSyncInfo(peerNodeID(from), events)
	case Checkpoint:
		cp, err := decodeCheckpoint(env.Payload)
		if err != nil {
			m.log.Warnf("gossip: decode checkpoint from %s: %v", from, err)
			return
		}
		m.recordCheckpoint(peerNodeID(from), cp)
	case RevocationBroadcast:
		if m.onRevocation != nil {
			if err := m.onRevocation(env.Payload); err != nil {
				m.log.Debugf("gossip: revocation apply from %s: %v", from, err)
			}
		}
	default:
		m.log.Warnf("gossip: unknown message type %d from %s", env.Type, from)
	}
}

// peerNodeID best-effort maps a transport-level peer identifier to a
// NodeID. Transports that cannot supply one (tests, anonymous direct
// pushes) fall back to hashing the string, which is stable per peer for
// the lifetime of the process.
func peerNodeID(transportID string) NodeID {
	return crypto.Sum([]byte(transportID))
}

func (m *Manager) respondToSyncRequest(from string, req SyncRequestPayload) {
	var events []*ledger.Event
	for _, e := range m.led.All() {
		if e.Epoch >= req.StartEpoch && e.Epoch <= req.EndEpoch {
			events = append(events, e)
			if len(events) >= maxSyncBatch {
				break
			}
		}
	}
	payload := encodeSyncResponse(events)
	env := newEnvelope(SyncResponse, payload, time.Now().Unix())
	if err := m.transport.SendDirect(from, encodeEnvelope(env)); err != nil {
		m.log.Debugf("gossip: sync response to %s: %v", from, err)
	}
}

func (m *Manager) recordCheckpoint(peer NodeID, cp CheckpointPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.peers[peer]
	if !ok {
		st = &PeerSyncState{Peer: peer}
		m.peers[peer] = st
	}
	st.LastSyncedEpoch = cp.Epoch
	st.LastHash = cp.LedgerHash
	st.LastSeen = time.Now().Unix()
}

// recordSyncInfo updates a peer's observed event count and max timestamp
// from a SyncResponse, for internal/reconcile's conflict detector to
// build an accurate peer Claim without a bespoke RPC.
func (m *Manager) recordSyncInfo(peer NodeID, events []*ledger.Event) {
	if len(events) == 0 {
		return
	}
	var maxTs int64
	for _, e := range events {
		if e.Timestamp > maxTs {
			maxTs = e.Timestamp
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.peers[peer]
	if !ok {
		st = &PeerSyncState{Peer: peer}
		m.peers[peer] = st
	}
	st.EventCount += len(events)
	if maxTs > st.MaxTimestamp {
		st.MaxTimestamp = maxTs
	}
	st.LastSeen = time.Now().Unix()
}

// PeerStates returns a snapshot of tracked peer sync state, for
// internal/reconcile's conflict detector.
func (m *Manager) PeerStates() []PeerSyncState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PeerSyncState, 0, len(m.peers))
	for _, st := range m.peers {
		out = append(out, *st)
	}
	return out
}

// broadcastLocalLoop pushes every locally-appended ledger event with hop
// count 0 to a random fanout-sized subset of peers, per spec §4.5.
func (m *Manager) broadcastLocalLoop(ch <-chan *ledger.Event) {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if e.SourceNode != m.led.SelfID() {
				continue // only re-broadcast locally-authored events here
			}
			if err := m.Broadcast(e); err != nil {
				m.log.Warnf("gossip: broadcast event %s: %v", e.EventID, err)
			}
		}
	}
}

// Broadcast pushes e directly to min(fanout, |peers|) randomly sampled
// peers, per spec §6.5's GOSSIP_FANOUT=3.
func (m *Manager) Broadcast(e *ledger.Event) error {
	env := newEnvelope(EventBroadcast, ledger.Encode(e), time.Now().Unix())
	data := encodeEnvelope(env)

	peers := m.transport.ConnectedPeers()
	targets := m.sample(peers, fanout)
	var lastErr error
	for _, p := range targets {
		if err := m.transport.SendDirect(p, data); err != nil {
			lastErr = err
			m.log.Debugf("gossip: fanout push to %s: %v", p, err)
		}
	}
	return lastErr
}

// BroadcastRevocation pushes a pre-encoded RevocationListUpdate payload
// to the full pubsub mesh, per spec §4.7 ("propagated via the same
// gossip layer... over a distinct message family").
func (m *Manager) BroadcastRevocation(payload []byte) error {
	env := newEnvelope(RevocationBroadcast, payload, time.Now().Unix())
	return m.transport.Publish(revocationsTopic, encodeEnvelope(env))
}

func (m *Manager) sample(peers []string, n int) []string {
	if n >= len(peers) {
		return peers
	}
	m.rngMu.Lock()
	defer m.rngMu.Unlock()
	shuffled := append([]string(nil), peers...)
	m.rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:n]
}
