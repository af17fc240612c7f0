package gossip

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/sirupsen/logrus"
)

// directProtocol carries fanout pushes outside of the pubsub mesh, so
// Broadcast's fixed fanout of 3 (spec §6.5's GOSSIP_FANOUT) is exact
// rather than left to gossipsub's own internal mesh degree.
const directProtocol = protocol.ID("/cashew/gossip/direct/1.0.0")

// HostConfig mirrors core/common_structs.go's Config, narrowed to what
// the gossip transport needs.
type HostConfig struct {
	ListenAddr     string
	BootstrapPeers []string
	DiscoveryTag   string

	// EnableNAT attempts NAT-PMP/UPnP discovery and port mapping for
	// ListenAddr's TCP port. Best-effort: failures only log a warning,
	// since the host keeps listening locally regardless.
	EnableNAT bool
}

// Host is the libp2p-backed Transport, grounded on core/network.go's
// NewNode: a host plus a GossipSub router, mDNS discovery, and a direct
// stream protocol for fanout pushes.
type Host struct {
	host   host.Host
	pubsub *pubsub.PubSub
	log    *logrus.Logger

	topicLock sync.Mutex
	topics    map[string]*pubsub.Topic

	peerLock sync.RWMutex
	peers    map[string]peer.AddrInfo

	directMu   sync.Mutex
	directSubs []chan InboundMessage

	nat *natTraversal

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHost creates and bootstraps a Cashew gossip host.
func NewHost(cfg HostConfig, log *logrus.Logger) (*Host, error) {
	ctx, cancel := context.WithCancel(context.Background())

	h, err := libp2p.New(libp2p.ListenAddrStrings(cfg.ListenAddr))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("gossip: create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("gossip: create pubsub: %w", err)
	}

	gh := &Host{
		host:   h,
		pubsub: ps,
		log:    log,
		topics: make(map[string]*pubsub.Topic),
		peers:  make(map[string]peer.AddrInfo),
		ctx:    ctx,
		cancel: cancel,
	}

	h.SetStreamHandler(directProtocol, gh.handleDirectStream)

	if err := gh.dialSeeds(cfg.BootstrapPeers); err != nil {
		log.Warnf("gossip: bootstrap dial warning: %v", err)
	}

	tag := cfg.DiscoveryTag
	if tag == "" {
		tag = "cashew"
	}
	mdns.NewMdnsService(h, tag, gh)

	if cfg.EnableNAT {
		if port, err := tcpPort(cfg.ListenAddr); err != nil {
			log.Warnf("gossip: nat: %v", err)
		} else if nt, err := newNATTraversal(); err != nil {
			log.Warnf("gossip: nat: discovery failed: %v", err)
		} else if err := nt.Map(port); err != nil {
			log.Warnf("gossip: nat: mapping failed: %v", err)
		} else {
			log.Infof("gossip: nat: mapped port %d, external ip %s", port, nt.ExternalIP())
			gh.nat = nt
		}
	}

	return gh, nil
}

var (
	_ mdns.Notifee = (*Host)(nil)
	_ Transport    = (*Host)(nil)
)

// HandlePeerFound implements mdns.Notifee: connect to a newly discovered
// LAN peer, ignoring ourselves and peers we already know.
func (h *Host) HandlePeerFound(info peer.AddrInfo) {
	if info.ID == h.host.ID() {
		return
	}
	h.peerLock.RLock()
	_, known := h.peers[info.ID.String()]
	h.peerLock.RUnlock()
	if known {
		return
	}
	if err := h.host.Connect(h.ctx, info); err != nil {
		h.log.Warnf("gossip: connect to discovered peer %s: %v", info.ID, err)
		return
	}
	h.peerLock.Lock()
	h.peers[info.ID.String()] = info
	h.peerLock.Unlock()
}

func (h *Host) dialSeeds(seeds []string) error {
	var lastErr error
	for _, addr := range seeds {
		pi, err := peer.AddrInfoFromString(addr)
		if err != nil {
			lastErr = err
			continue
		}
		if err := h.host.Connect(h.ctx, *pi); err != nil {
			lastErr = err
			continue
		}
		h.peerLock.Lock()
		h.peers[pi.ID.String()] = *pi
		h.peerLock.Unlock()
	}
	return lastErr
}

func (h *Host) handleDirectStream(s network.Stream) {
	defer s.Close()
	data, err := io.ReadAll(s)
	if err != nil {
		h.log.Warnf("gossip: direct stream read: %v", err)
		return
	}
	h.directMu.Lock()
	chans := append([]chan InboundMessage(nil), h.directSubs...)
	h.directMu.Unlock()
	from := s.Conn().RemotePeer().String()
	for _, ch := range chans {
		select {
		case ch <- InboundMessage{From: from, Topic: "direct", Payload: data}:
		default:
		}
	}
}

// Publish implements Transport.
func (h *Host) Publish(topic string, data []byte) error {
	h.topicLock.Lock()
	t, ok := h.topics[topic]
	if !ok {
		var err error
		t, err = h.pubsub.Join(topic)
		if err != nil {
			h.topicLock.Unlock()
			return fmt.Errorf("gossip: join topic %s: %w", topic, err)
		}
		h.topics[topic] = t
	}
	h.topicLock.Unlock()
	return t.Publish(h.ctx, data)
}

// SendDirect implements Transport via a dedicated libp2p stream protocol.
func (h *Host) SendDirect(peerID string, data []byte) error {
	pid, err := peer.Decode(peerID)
	if err != nil {
		return fmt.Errorf("gossip: invalid peer id %s: %w", peerID, err)
	}
	ctx, cancel := context.WithTimeout(h.ctx, 30*time.Second)
	defer cancel()
	s, err := h.host.NewStream(ctx, pid, directProtocol)
	if err != nil {
		return fmt.Errorf("gossip: open direct stream to %s: %w", peerID, err)
	}
	defer s.Close()
	_, err = s.Write(data)
	return err
}

// Subscribe implements Transport. Subscribing to the reserved "direct"
// topic instead yields pushes received via SendDirect.
func (h *Host) Subscribe(topic string) (<-chan InboundMessage, error) {
	if topic == "direct" {
		ch := make(chan InboundMessage, 64)
		h.directMu.Lock()
		h.directSubs = append(h.directSubs, ch)
		h.directMu.Unlock()
		return ch, nil
	}

	h.topicLock.Lock()
	t, ok := h.topics[topic]
	if !ok {
		var err error
		t, err = h.pubsub.Join(topic)
		if err != nil {
			h.topicLock.Unlock()
			return nil, fmt.Errorf("gossip: join topic %s: %w", topic, err)
		}
		h.topics[topic] = t
	}
	h.topicLock.Unlock()

	sub, err := t.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("gossip: subscribe topic %s: %w", topic, err)
	}
	out := make(chan InboundMessage, 64)
	go func() {
		for {
			msg, err := sub.Next(h.ctx)
			if err != nil {
				close(out)
				return
			}
			out <- InboundMessage{From: msg.GetFrom().String(), Topic: topic, Payload: msg.Data}
		}
	}()
	return out, nil
}

// ConnectedPeers implements Transport.
func (h *Host) ConnectedPeers() []string {
	h.peerLock.RLock()
	defer h.peerLock.RUnlock()
	ids := make([]string, 0, len(h.peers))
	for id := range h.peers {
		ids = append(ids, id)
	}
	return ids
}

// Close implements Transport.
func (h *Host) Close() error {
	if h.nat != nil {
		if err := h.nat.Unmap(); err != nil {
			h.log.Warnf("gossip: nat: unmap failed: %v", err)
		}
	}
	h.cancel()
	return h.host.Close()
}
