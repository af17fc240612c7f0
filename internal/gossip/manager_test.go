package gossip

import (
	"crypto/ed25519"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"cashew/internal/crypto"
	"cashew/internal/ledger"
)

// fakeTransport is an in-memory Transport double, letting tests drive
// gossip.Manager without a real libp2p host.
type fakeTransport struct {
	mu         sync.Mutex
	peers      []string
	sent       map[string][][]byte
	published  map[string][][]byte
	subs       map[string]chan InboundMessage
}

func newFakeTransport(peers ...string) *fakeTransport {
	return &fakeTransport{
		peers:     peers,
		sent:      make(map[string][][]byte),
		published: make(map[string][][]byte),
		subs:      make(map[string]chan InboundMessage),
	}
}

func (f *fakeTransport) Publish(topic string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic] = append(f.published[topic], data)
	return nil
}

func (f *fakeTransport) SendDirect(peerID string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[peerID] = append(f.sent[peerID], data)
	return nil
}

func (f *fakeTransport) Subscribe(topic string) (<-chan InboundMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.subs[topic]
	if !ok {
		ch = make(chan InboundMessage, 16)
		f.subs[topic] = ch
	}
	return ch, nil
}

func (f *fakeTransport) ConnectedPeers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.peers...)
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) sentCount(peerID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent[peerID])
}

func (f *fakeTransport) distinctRecipients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, msgs := range f.sent {
		if len(msgs) > 0 {
			n++
		}
	}
	return n
}

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	self := crypto.Sum(pub)
	led := ledger.New(ledger.Config{SelfID: self, PrivateKey: priv, Logger: logrus.New()})
	return led
}

func TestBroadcastSendsToAtMostFanoutPeers(t *testing.T) {
	transport := newFakeTransport("p1", "p2", "p3", "p4", "p5")
	led := newTestLedger(t)
	m := New(transport, led, logrus.New())

	e, err := led.AppendLocal(ledger.NodeJoined, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Broadcast(e); err != nil {
		t.Fatal(err)
	}
	if n := transport.distinctRecipients(); n != fanout {
		t.Fatalf("expected broadcast to exactly %d peers, got %d", fanout, n)
	}
}

func TestBroadcastSendsToAllPeersWhenFewerThanFanout(t *testing.T) {
	transport := newFakeTransport("p1", "p2")
	led := newTestLedger(t)
	m := New(transport, led, logrus.New())

	e, _ := led.AppendLocal(ledger.NodeJoined, nil)
	if err := m.Broadcast(e); err != nil {
		t.Fatal(err)
	}
	if n := transport.distinctRecipients(); n != 2 {
		t.Fatalf("expected broadcast to both peers, got %d", n)
	}
}

func TestHandleEnvelopeDedupesByMessageID(t *testing.T) {
	transport := newFakeTransport()
	led := newTestLedger(t)
	m := New(transport, led, logrus.New())

	otherPub, otherPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatal(err)
	}
	otherSelf := crypto.Sum(otherPub)
	other := ledger.New(ledger.Config{SelfID: otherSelf, PrivateKey: otherPriv, Logger: logrus.New()})
	e, err := other.AppendLocal(ledger.NodeJoined, nil)
	if err != nil {
		t.Fatal(err)
	}
	led.RegisterKey(otherSelf, otherPub)

	env := newEnvelope(EventBroadcast, ledger.Encode(e), time.Now().Unix())
	m.handleEnvelope("peerA", env)
	m.handleEnvelope("peerA", env)

	m.seenMu.Lock()
	count := len(m.seen)
	m.seenMu.Unlock()
	if count != 1 {
		t.Fatalf("expected exactly one deduped message id, got %d", count)
	}
	if led.Count() != 1 {
		t.Fatalf("expected the event to be appended exactly once, got %d", led.Count())
	}
}

func TestRespondToSyncRequestSendsMatchingEvents(t *testing.T) {
	transport := newFakeTransport()
	led := newTestLedger(t)
	m := New(transport, led, logrus.New())

	for i := 0; i < 3; i++ {
		if _, err := led.AppendLocal(ledger.NodeJoined, nil); err != nil {
			t.Fatal(err)
		}
	}
	epoch := led.CurrentEpoch()

	m.respondToSyncRequest("peerA", SyncRequestPayload{StartEpoch: 0, EndEpoch: epoch})

	if transport.sentCount("peerA") != 1 {
		t.Fatalf("expected exactly one sync response sent to peerA")
	}
	env, err := decodeEnvelope(transport.sent["peerA"][0])
	if err != nil {
		t.Fatal(err)
	}
	if env.Type != SyncResponse {
		t.Fatalf("expected SyncResponse envelope, got %s", env.Type)
	}
	events, err := decodeSyncResponse(env.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events in sync response, got %d", len(events))
	}
}

func TestRecordCheckpointTracksPeerState(t *testing.T) {
	transport := newFakeTransport()
	led := newTestLedger(t)
	m := New(transport, led, logrus.New())

	peer := crypto.Sum([]byte("peerB"))
	m.recordCheckpoint(peer, CheckpointPayload{Epoch: 42, LedgerHash: crypto.Sum([]byte("hash"))})

	states := m.PeerStates()
	if len(states) != 1 || states[0].LastSyncedEpoch != 42 {
		t.Fatalf("expected tracked peer at epoch 42, got %+v", states)
	}
}

func TestPruneStalePeersRemovesOldEntries(t *testing.T) {
	transport := newFakeTransport()
	led := newTestLedger(t)
	m := New(transport, led, logrus.New())

	fresh := crypto.Sum([]byte("fresh"))
	stale := crypto.Sum([]byte("stale"))
	now := time.Now()
	m.recordCheckpoint(fresh, CheckpointPayload{Epoch: 1})
	m.recordCheckpoint(stale, CheckpointPayload{Epoch: 1})

	m.mu.Lock()
	m.peers[stale].LastSeen = now.Add(-10 * time.Minute).Unix()
	m.mu.Unlock()

	m.pruneStalePeers(now)

	states := m.PeerStates()
	if len(states) != 1 || states[0].Peer != fresh {
		t.Fatalf("expected only the fresh peer to survive pruning, got %+v", states)
	}
}

func TestRunSyncCheckRequestsGapFromHighestPeer(t *testing.T) {
	transport := newFakeTransport()
	led := newTestLedger(t)
	m := New(transport, led, logrus.New())

	low := crypto.Sum([]byte("low"))
	high := crypto.Sum([]byte("high"))
	m.recordCheckpoint(low, CheckpointPayload{Epoch: 2})
	m.recordCheckpoint(high, CheckpointPayload{Epoch: 9})

	m.runSyncCheck()

	if transport.sentCount(high.String()) != 1 {
		t.Fatalf("expected a sync request sent to the highest-epoch peer")
	}
	if transport.sentCount(low.String()) != 0 {
		t.Fatalf("did not expect a sync request sent to the lower-epoch peer")
	}
}

func TestRunSyncCheckNoopsWhenLocalIsCurrent(t *testing.T) {
	transport := newFakeTransport()
	led := newTestLedger(t)
	m := New(transport, led, logrus.New())

	if _, err := led.AppendLocal(ledger.NodeJoined, nil); err != nil {
		t.Fatal(err)
	}
	peer := crypto.Sum([]byte("peer"))
	m.recordCheckpoint(peer, CheckpointPayload{Epoch: 0})

	m.runSyncCheck()

	if transport.sentCount(peer.String()) != 0 {
		t.Fatalf("did not expect a sync request when no peer is ahead")
	}
}

func TestSampleNeverExceedsRequestedCount(t *testing.T) {
	transport := newFakeTransport()
	led := newTestLedger(t)
	m := New(transport, led, logrus.New())

	peers := []string{"a", "b", "c", "d", "e", "f"}
	sampled := m.sample(peers, 3)
	if len(sampled) != 3 {
		t.Fatalf("expected sample of 3, got %d", len(sampled))
	}
	seen := make(map[string]bool)
	for _, p := range sampled {
		if seen[p] {
			t.Fatalf("sample returned duplicate peer %s", p)
		}
		seen[p] = true
	}
}

func TestBroadcastCheckpointPublishesToCheckpointsTopic(t *testing.T) {
	transport := newFakeTransport()
	led := newTestLedger(t)
	m := New(transport, led, logrus.New())

	m.broadcastCheckpoint(7)

	transport.mu.Lock()
	msgs := transport.published[checkpointsTopic]
	n := len(msgs)
	transport.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected one published checkpoint message, got %d", n)
	}
	env, err := decodeEnvelope(msgs[0])
	if err != nil {
		t.Fatal(err)
	}
	if env.Type != Checkpoint {
		t.Fatalf("expected Checkpoint envelope, got %s", env.Type)
	}
	cp, err := decodeCheckpoint(env.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if cp.Epoch != 7 {
		t.Fatalf("expected checkpoint epoch 7, got %d", cp.Epoch)
	}
}

func TestBroadcastRevocationPublishesToRevocationsTopic(t *testing.T) {
	transport := newFakeTransport()
	led := newTestLedger(t)
	m := New(transport, led, logrus.New())

	if err := m.BroadcastRevocation([]byte("payload")); err != nil {
		t.Fatal(err)
	}
	transport.mu.Lock()
	n := len(transport.published[revocationsTopic])
	transport.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected one published revocation message, got %d", n)
	}
}
