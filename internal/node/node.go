package node

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"cashew/internal/access"
	"cashew/internal/attackprevention"
	"cashew/internal/content"
	"cashew/internal/crypto"
	"cashew/internal/gossip"
	"cashew/internal/issuance"
	"cashew/internal/keyregistry"
	"cashew/internal/ledger"
	"cashew/internal/network"
	"cashew/internal/reconcile"
	"cashew/internal/renderer"
	"cashew/internal/replication"
	"cashew/internal/reputation"
	"cashew/internal/state"
)

// Node bundles every Cashew component behind one Start/Stop lifecycle,
// the same shape as core/bootstrap_node.go's BootstrapNode but with a
// full domain stack rather than a bare network+ledger pair.
type Node struct {
	self crypto.Hash
	log  *logrus.Logger

	Ledger      *ledger.Ledger
	State       *state.Projector
	KeyRegistry *keyregistry.Registry
	Issuance    *issuance.Coordinator
	Reputation  *reputation.Manager
	Network     *network.Manager
	Replication *replication.Coordinator
	Access      *access.Controller
	Attack      *attackprevention.Coordinator
	Content     *content.Store
	Renderer    *renderer.Renderer
	Gossip      *gossip.Manager

	host    *gossip.Host
	ledgerPath string

	reconcileEvery time.Duration

	running int32
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New wires every component per cfg but does not start any background
// loop; call Start for that.
func New(cfg Config) (*Node, error) {
	log := cfg.logger()
	self := cfg.selfID()

	led, err := openLedger(cfg, self, log)
	if err != nil {
		return nil, err
	}

	st := state.New(led, log)
	st.Rebuild()

	keyreg := keyregistry.New(led, st, log)

	policy := cfg.IssuancePolicy
	if policy.EpochCapPerNode == 0 {
		policy = issuance.DefaultPolicy()
	}
	issuanceCoord, err := issuance.New(led, st, keyreg, policy, log)
	if err != nil {
		return nil, fmt.Errorf("node: issuance: %w", err)
	}

	rep := reputation.New(led, log)
	rep.Rebuild()

	netMgr := network.New(led, st, log)

	contentStore, err := content.NewStore(cfg.ContentRoot)
	if err != nil {
		return nil, fmt.Errorf("node: content store: %w", err)
	}

	replCoord := replication.New(led, st, netMgr, nil, localOnlyStream(contentStore), log)

	accessCtrl := access.NewController(st, log)

	attack := attackprevention.New(rep, log)

	cache, err := renderer.NewCache(0, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("node: renderer cache: %w", err)
	}
	rdr := renderer.New(cache, contentFetchFunc(contentStore), cfg.RenderSanitize)

	host, err := gossip.NewHost(cfg.Gossip, log)
	if err != nil {
		return nil, fmt.Errorf("node: gossip host: %w", err)
	}
	gm := gossip.New(host, led, log)
	gm.SetRevocationHandler(revocationHandler(led, accessCtrl))

	reconcileEvery := cfg.ReconcileEvery
	if reconcileEvery <= 0 {
		reconcileEvery = defaultReconcileInterval
	}

	return &Node{
		self:           self,
		log:            log,
		Ledger:         led,
		State:          st,
		KeyRegistry:    keyreg,
		Issuance:       issuanceCoord,
		Reputation:     rep,
		Network:        netMgr,
		Replication:    replCoord,
		Access:         accessCtrl,
		Attack:         attack,
		Content:        contentStore,
		Renderer:       rdr,
		Gossip:         gm,
		host:           host,
		ledgerPath:     cfg.LedgerPath,
		reconcileEvery: reconcileEvery,
	}, nil
}

func openLedger(cfg Config, self crypto.Hash, log *logrus.Logger) (*ledger.Ledger, error) {
	lcfg := ledger.Config{SelfID: self, PrivateKey: cfg.PrivateKey, Logger: log}
	if cfg.LedgerPath == "" {
		return ledger.New(lcfg), nil
	}
	led, err := ledger.Load(cfg.LedgerPath, lcfg)
	if err != nil {
		return nil, fmt.Errorf("node: load ledger: %w", err)
	}
	return led, nil
}

// localOnlyStream implements replication.StreamFunc against the local
// content store only. Cashew's actual byte transfer for a non-local
// source happens over the gateway's range-fetch endpoint (spec §6.4),
// which this build does not wire into the replication coordinator; a
// job whose source is a remote node fails its stream step and falls
// back to the coordinator's own retry/backoff schedule.
func localOnlyStream(store *content.Store) replication.StreamFunc {
	return func(source replication.NodeID, hash replication.ContentHash) ([]byte, error) {
		data, ok := store.Get(hash)
		if !ok {
			return nil, fmt.Errorf("node: content %s not held locally", hash)
		}
		return data, nil
	}
}

func contentFetchFunc(store *content.Store) renderer.FetchFunc {
	return func(hash renderer.ContentHash) ([]byte, content.Metadata, error) {
		data, ok := store.Get(hash)
		if !ok {
			return nil, content.Metadata{}, fmt.Errorf("node: content %s not found", hash)
		}
		meta, _ := store.GetMetadata(hash)
		return data, meta, nil
	}
}

// revocationHandler decodes a gossiped RevocationBroadcast payload and
// applies it through the access controller, looking up the revoker's
// public key from the ledger's known-key set (the local key, plus any key
// passed to ledger.RegisterKey).
func revocationHandler(led *ledger.Ledger, ctrl *access.Controller) gossip.RevocationHandler {
	return func(payload []byte) error {
		entry, err := access.DecodeRevocation(payload)
		if err != nil {
			return fmt.Errorf("node: decode revocation: %w", err)
		}
		pub, ok := led.KnownKey(entry.Revoker)
		if !ok {
			return fmt.Errorf("node: unknown revoker key %s", entry.Revoker)
		}
		return ctrl.Revocations().Process(entry, pub, time.Now().Unix())
	}
}

// Start launches every background loop. It is idempotent.
func (n *Node) Start() error {
	if !atomic.CompareAndSwapInt32(&n.running, 0, 1) {
		return nil
	}
	n.stopCh = make(chan struct{})

	go n.State.Run()
	go n.Reputation.Run()
	if err := n.Gossip.Start(); err != nil {
		atomic.StoreInt32(&n.running, 0)
		return fmt.Errorf("node: start gossip: %w", err)
	}

	n.wg.Add(1)
	go n.reconcileLoop()

	return nil
}

// Stop signals every loop to exit, waits for them, and persists the
// ledger if a path was configured.
func (n *Node) Stop() error {
	if !atomic.CompareAndSwapInt32(&n.running, 1, 0) {
		return nil
	}
	close(n.stopCh)
	n.wg.Wait()

	n.Gossip.Stop()
	n.Reputation.Stop()
	n.State.Stop()
	if err := n.host.Close(); err != nil {
		n.log.Warnf("node: close gossip host: %v", err)
	}

	if n.ledgerPath != "" {
		if err := n.Ledger.Persist(n.ledgerPath); err != nil {
			return fmt.Errorf("node: persist ledger: %w", err)
		}
	}
	return nil
}

// SelfID returns the local node's identity.
func (n *Node) SelfID() crypto.Hash { return n.self }

// Log returns the node's shared logger, for sibling components (e.g.
// internal/gateway) that wire against a *Node rather than taking their
// own *logrus.Logger parameter.
func (n *Node) Log() *logrus.Logger { return n.log }

// reconcileLoop periodically compares the local ledger's claim against
// every tracked peer's, detecting and resolving conflicts per spec
// §4.5/internal/reconcile.
func (n *Node) reconcileLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.reconcileEvery)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case now := <-ticker.C:
			n.runReconciliation(now.Unix())
		}
	}
}

func (n *Node) runReconciliation(now int64) {
	peers := n.Gossip.PeerStates()
	if len(peers) == 0 {
		return
	}
	local := reconcile.LocalClaim(n.Ledger)

	for _, ps := range peers {
		peerClaim := reconcile.Claim{
			Peer:         ps.Peer,
			Epoch:        ps.LastSyncedEpoch,
			Hash:         ps.LastHash,
			EventCount:   ps.EventCount,
			MaxTimestamp: ps.MaxTimestamp,
		}
		conflict := reconcile.DetectConflict(local, peerClaim, now)
		if conflict == nil {
			continue
		}
		strategy := reconcile.SelectStrategy(conflict, len(peers))
		res := reconcile.Resolve(n.Ledger, conflict, strategy, nil)
		n.log.WithFields(logrus.Fields{
			"peer":     ps.Peer.String(),
			"conflict": conflict.Type.String(),
			"strategy": strategy.String(),
			"applied":  res.Applied,
		}).Warn("node: gossip state conflict detected")
	}
}
