// Package gossip implements Cashew's peer-to-peer dissemination and
// synchronization layer (components C11/C12): push-fanout broadcast of
// newly appended ledger events, a periodic sync/checkpoint/consistency
// scheduler, and peer sync-state tracking feeding internal/reconcile's
// conflict detection. Grounded on core/network.go's libp2p host/pubsub
// bootstrap and core/peer_management.go's PeerManager seam, generalized
// from Synnergy's blockchain topics to Cashew's ledger-sync message
// family (spec §4.5, §6.3).
package gossip

import (
	"time"

	"cashew/internal/crypto"
	"cashew/internal/ledger"
)

type NodeID = crypto.Hash

// GOSSIP_FANOUT et al., per spec §6.5.
const (
	fanout                = 3
	syncInterval          = 60 * time.Second
	checkpointEveryEpochs = 10
	consistencyInterval   = 5 * time.Minute
	stalePeerThreshold    = 5 * time.Minute
	tickInterval          = 1 * time.Second
	maxSyncBatch          = 1000
)

// MessageType tags the gossip wire envelope, per spec §6.3.
type MessageType uint8

const (
	EventBroadcast MessageType = iota + 1
	SyncRequest
	SyncResponse
	Checkpoint
	RevocationBroadcast
)

func (t MessageType) String() string {
	switch t {
	case EventBroadcast:
		return "EVENT_BROADCAST"
	case SyncRequest:
		return "SYNC_REQUEST"
	case SyncResponse:
		return "SYNC_RESPONSE"
	case Checkpoint:
		return "CHECKPOINT"
	case RevocationBroadcast:
		return "REVOCATION_BROADCAST"
	default:
		return "UNKNOWN"
	}
}

// Envelope is the wire-level GossipMessage of spec §6.3: a typed,
// identified, hop-counted carrier around an opaque payload.
type Envelope struct {
	Type      MessageType
	MessageID crypto.Hash
	Payload   []byte
	Timestamp int64
	HopCount  uint8
}

// SyncRequestPayload asks a peer for events in [StartEpoch, EndEpoch].
type SyncRequestPayload struct {
	StartEpoch uint64
	EndEpoch   uint64
}

// SyncResponsePayload carries at most maxSyncBatch events, per spec §5's
// resource budget ("sync responses deliver at most 1000 events per
// message").
type SyncResponsePayload struct {
	Events []*ledger.Event
}

// CheckpointPayload advertises a peer's current epoch and chain tip.
type CheckpointPayload struct {
	Epoch      uint64
	LedgerHash crypto.Hash
}

// PeerSyncState tracks what a remote peer has told us about itself, used
// both by the sync scheduler and by internal/reconcile's conflict
// detector.
type PeerSyncState struct {
	Peer            NodeID
	LastSyncedEpoch uint64
	LastHash        crypto.Hash
	LastSeen        int64
	// EventCount and MaxTimestamp are filled in from the peer's most
	// recent SyncResponse, not its checkpoints, and so lag behind
	// LastSyncedEpoch/LastHash until a sync round-trip has happened.
	EventCount   int
	MaxTimestamp int64
}

// InboundMessage is a decoded envelope plus the peer it arrived from,
// mirroring core/common_structs.go's InboundMsg.
type InboundMessage struct {
	From    string
	Topic   string
	Payload []byte
}

// Transport is the narrow seam gossip.Manager depends on, so it can be
// driven by a real libp2p Host or an in-memory fake in tests -- the same
// pattern as core/common_structs.go's PeerManager interface.
type Transport interface {
	// Publish broadcasts data on topic to the full pubsub mesh.
	Publish(topic string, data []byte) error
	// SendDirect pushes data to exactly one connected peer, used to
	// implement the fixed-fanout push in Broadcast.
	SendDirect(peerID string, data []byte) error
	// Subscribe returns a channel of inbound messages on topic.
	Subscribe(topic string) (<-chan InboundMessage, error)
	// ConnectedPeers lists the IDs of currently connected peers.
	ConnectedPeers() []string
	Close() error
}
