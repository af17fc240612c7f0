// Package node is Cashew's composition root (grounded on
// core/bootstrap_node.go's BootstrapNode): it wires the ledger, derived
// state, every domain coordinator, the gossip transport, and the
// reconciliation loop into one process with a single Start/Stop
// lifecycle and a single graceful-shutdown barrier, per spec §5.
package node

import (
	"crypto/ed25519"
	"time"

	"github.com/sirupsen/logrus"

	"cashew/internal/crypto"
	"cashew/internal/gossip"
	"cashew/internal/issuance"
)

// Config aggregates every section a running Cashew node needs, mirroring
// core/bootstrap_node.go's BootstrapConfig (one struct per subsystem)
// flattened into Cashew's own subsystem set.
type Config struct {
	PrivateKey ed25519.PrivateKey

	// LedgerPath is where the event log is persisted between restarts.
	// Empty means in-memory only (used by tests).
	LedgerPath string
	// ContentRoot is the blob store's root directory.
	ContentRoot string

	Gossip          gossip.HostConfig
	IssuancePolicy  issuance.Policy
	ReconcileEvery  time.Duration
	RenderSanitize  bool

	Logger *logrus.Logger
}

// selfID derives the local NodeID from the configured identity key.
func (c Config) selfID() crypto.Hash {
	return crypto.NodeIDFromPublicKey(c.PrivateKey.Public().(ed25519.PublicKey))
}

func (c Config) logger() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

const defaultReconcileInterval = 5 * time.Minute
