package ledger

import (
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"cashew/internal/crypto"
)

// subscriberBufferSize bounds the back-pressure queue handed to each
// subscriber, per the teacher's "retains only the chain tip, not observer
// closures" guidance (spec §9, "Callbacks → message passing").
const subscriberBufferSize = 256

// Ledger is the per-node signed, hash-chained, content-addressed event log
// (component C3). It is safe for concurrent use.
type Ledger struct {
	mu sync.RWMutex

	self    NodeID
	privKey ed25519.PrivateKey

	events    []*Event
	byID      map[crypto.Hash]*Event
	byNode    map[NodeID][]*Event
	byType    map[EventType][]*Event
	chainTips map[NodeID]crypto.Hash

	knownKeys map[NodeID]ed25519.PublicKey

	subs []chan *Event

	log *logrus.Logger
}

// Config configures a new Ledger. SelfID/PrivateKey are the local node's
// identity; events authored locally are signed with PrivateKey.
type Config struct {
	SelfID     NodeID
	PrivateKey ed25519.PrivateKey
	Logger     *logrus.Logger
}

// New creates an empty in-memory Ledger. Use Load to restore persisted
// state on top of it.
func New(cfg Config) *Ledger {
	lg := cfg.Logger
	if lg == nil {
		lg = logrus.StandardLogger()
	}
	l := &Ledger{
		self:      cfg.SelfID,
		privKey:   cfg.PrivateKey,
		byID:      make(map[crypto.Hash]*Event),
		byNode:    make(map[NodeID][]*Event),
		byType:    make(map[EventType][]*Event),
		chainTips: make(map[NodeID]crypto.Hash),
		knownKeys: make(map[NodeID]ed25519.PublicKey),
		log:       lg,
	}
	if cfg.PrivateKey != nil {
		pub := cfg.PrivateKey.Public().(ed25519.PublicKey)
		l.knownKeys[cfg.SelfID] = pub
	}
	return l
}

// RegisterKey binds a NodeID to its Ed25519 public key, so that future
// AppendExternal calls for that source can verify signatures. Only the
// local key is registered automatically (by New); every peer key must be
// registered through this method.
func (l *Ledger) RegisterKey(id NodeID, pub ed25519.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.knownKeys[id] = pub
}

// KnownKey returns the registered public key for id, if any.
func (l *Ledger) KnownKey(id NodeID) (ed25519.PublicKey, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	k, ok := l.knownKeys[id]
	return k, ok
}

// AppendLocal signs and appends a new event authored by this node. It never
// fails once inputs are well formed: there is no external validation step
// for locally-authored events.
func (l *Ledger) AppendLocal(eventType EventType, payload []byte) (*Event, error) {
	if l.privKey == nil {
		return nil, fmt.Errorf("ledger: no local private key configured")
	}
	l.mu.Lock()
	prev := l.chainTips[l.self]
	now := time.Now().Unix()
	e := NewSignedEvent(eventType, l.self, now, prev, payload, l.privKey)
	l.storeLocked(e)
	l.mu.Unlock()
	l.publish(e)
	return e, nil
}

// AppendExternal validates and stores an event received over gossip. On
// success it stores, re-indexes, and notifies subscribers. On failure it
// returns a typed *AppendError and never mutates state.
func (l *Ledger) AppendExternal(e *Event) error {
	l.mu.Lock()
	if _, exists := l.byID[e.EventID]; exists {
		l.mu.Unlock()
		return newAppendErr(ErrDuplicate, "event %s already present", e.EventID)
	}
	pub, known := l.knownKeys[e.SourceNode]
	if !known {
		l.mu.Unlock()
		return newAppendErr(ErrInvalidSignature, "no known public key for source node %s", e.SourceNode)
	}
	if err := VerifyEvent(e, pub); err != nil {
		l.mu.Unlock()
		return newAppendErr(ErrInvalidSignature, "%v", err)
	}
	tip, hasTip := l.chainTips[e.SourceNode]
	if hasTip {
		if e.PreviousHash != tip {
			l.mu.Unlock()
			return newAppendErr(ErrChainBreak, "expected previous_hash %s, got %s", tip, e.PreviousHash)
		}
	} else if !e.PreviousHash.IsZero() {
		l.mu.Unlock()
		return newAppendErr(ErrChainBreak, "first event for %s must have zero previous_hash", e.SourceNode)
	}
	now := time.Now().Unix()
	skew := now - e.Timestamp
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > ClockSkewTolerance {
		l.mu.Unlock()
		return newAppendErr(ErrClockSkew, "timestamp %d skewed %ds from local clock", e.Timestamp, skew)
	}
	l.storeLocked(e)
	l.mu.Unlock()
	l.publish(e)
	return nil
}

// storeLocked indexes e and advances its source's chain tip. Caller must
// hold l.mu.
func (l *Ledger) storeLocked(e *Event) {
	l.events = append(l.events, e)
	l.byID[e.EventID] = e
	l.byNode[e.SourceNode] = append(l.byNode[e.SourceNode], e)
	l.byType[e.Type] = append(l.byType[e.Type], e)
	l.chainTips[e.SourceNode] = e.EventID
}

// publish delivers e to every subscriber without blocking the appender; a
// full subscriber channel drops the event and is logged, rather than
// stalling the ledger.
func (l *Ledger) publish(e *Event) {
	l.mu.RLock()
	subs := append([]chan *Event(nil), l.subs...)
	l.mu.RUnlock()
	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			l.log.WithField("event_id", e.EventID.String()).Warn("ledger: subscriber channel full, dropping notification")
		}
	}
}

// Subscribe returns a bounded channel of newly appended events (local or
// external), in append order.
func (l *Ledger) Subscribe() <-chan *Event {
	ch := make(chan *Event, subscriberBufferSize)
	l.mu.Lock()
	l.subs = append(l.subs, ch)
	l.mu.Unlock()
	return ch
}

// Get returns the event with the given ID, if present.
func (l *Ledger) Get(id crypto.Hash) (*Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.byID[id]
	return e, ok
}

// EventsByNode returns a snapshot copy of all events authored by node, in
// chain order.
func (l *Ledger) EventsByNode(node NodeID) []*Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*Event(nil), l.byNode[node]...)
}

// EventsByType returns a snapshot copy of all events of the given type, in
// append (not necessarily chain) order.
func (l *Ledger) EventsByType(t EventType) []*Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*Event(nil), l.byType[t]...)
}

// Recent returns the n most recently appended events, oldest first.
func (l *Ledger) Recent(n int) []*Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n > len(l.events) {
		n = len(l.events)
	}
	start := len(l.events) - n
	return append([]*Event(nil), l.events[start:]...)
}

// All returns a snapshot copy of every event in append order.
func (l *Ledger) All() []*Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*Event(nil), l.events...)
}

// ChainTip returns the current chain tip for node, and whether it has any
// events at all.
func (l *Ledger) ChainTip(node NodeID) (crypto.Hash, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	h, ok := l.chainTips[node]
	return h, ok
}

// SelfID returns the local node identifier this ledger was constructed with.
func (l *Ledger) SelfID() NodeID { return l.self }

// Count returns the total number of stored events.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

// LatestHash returns the EventID of the most recently appended event across
// all sources (used for checkpoint broadcasting), or the zero hash if empty.
func (l *Ledger) LatestHash() crypto.Hash {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.events) == 0 {
		return crypto.Hash{}
	}
	return l.events[len(l.events)-1].EventID
}

// CurrentEpoch returns the highest epoch number observed across all events.
func (l *Ledger) CurrentEpoch() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var max uint64
	for _, e := range l.events {
		if e.Epoch > max {
			max = e.Epoch
		}
	}
	return max
}

// ValidateChain walks every source node's event list and verifies that
// cur.PreviousHash == prev.EventID throughout, and that no EventID repeats
// within a chain.
func (l *Ledger) ValidateChain() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for node, events := range l.byNode {
		seen := make(map[crypto.Hash]struct{}, len(events))
		var prevHash crypto.Hash
		for i, e := range events {
			if _, dup := seen[e.EventID]; dup {
				return fmt.Errorf("ledger: duplicate event_id %s in chain for %s", e.EventID, node)
			}
			seen[e.EventID] = struct{}{}
			if fieldHash(e) != e.EventID {
				return fmt.Errorf("ledger: event %s has mismatched event_id", e.EventID)
			}
			if i == 0 {
				if !e.PreviousHash.IsZero() {
					return fmt.Errorf("ledger: first event for %s has non-zero previous_hash", node)
				}
			} else if e.PreviousHash != prevHash {
				return fmt.Errorf("ledger: chain break for %s at event %s", node, e.EventID)
			}
			prevHash = e.EventID
		}
	}
	return nil
}

// Snapshot is a point-in-time summary, analogous to the teacher's Metrics
// struct in core/system_health_logging.go.
type Snapshot struct {
	Timestamp   int64
	Epoch       uint64
	LatestHash  crypto.Hash
	EventCount  int
	NodeCount   int
	TypeCounts  map[EventType]int
}

// CurrentSnapshot reports the ledger's aggregate state.
func (l *Ledger) CurrentSnapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	tc := make(map[EventType]int, len(l.byType))
	for t, evs := range l.byType {
		tc[t] = len(evs)
	}
	var latest crypto.Hash
	if len(l.events) > 0 {
		latest = l.events[len(l.events)-1].EventID
	}
	return Snapshot{
		Timestamp:  time.Now().Unix(),
		Epoch:      EpochOf(time.Now().Unix()),
		LatestHash: latest,
		EventCount: len(l.events),
		NodeCount:  len(l.byNode),
		TypeCounts: tc,
	}
}
