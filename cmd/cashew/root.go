package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	cmdconfig "cashew/cmd/cashew/config"
	"cashew/internal/crypto"
	"cashew/internal/gossip"
	"cashew/internal/identity"
	"cashew/internal/issuance"
	"cashew/internal/node"
)

var rootCmd = &cobra.Command{
	Use:   "cashew",
	Short: "Cashew node and CLI",
}

var envFlag string

func init() {
	rootCmd.PersistentFlags().StringVar(&envFlag, "env", "", "configuration environment to merge over the default (e.g. staging)")
}

// nodeOnce/appNode give every subsystem command (ledger, key, network,
// access, content, serve) the same *node.Node instance within a single
// process invocation, mirroring cmd/cli/access_control.go's acOnce/acCtrl
// sync.Once singleton but scoped to the whole node rather than one
// controller.
var (
	nodeOnce sync.Once
	appNode  *node.Node
	nodeErr  error
)

func bootstrapNode(cmd *cobra.Command, _ []string) error {
	nodeOnce.Do(func() {
		cfg, err := cmdconfig.LoadConfigSafe(envFlag)
		if err != nil {
			nodeErr = err
			return
		}

		mgr := identity.NewManager(cfg.Storage.IdentityPath, nil, nil)
		kp, loadErr := mgr.Load("")
		if loadErr != nil {
			kp, _, nodeErr = identity.Generate(false)
			if nodeErr != nil {
				return
			}
			if nodeErr = mgr.Save(kp, ""); nodeErr != nil {
				return
			}
		}

		appNode, nodeErr = node.New(node.Config{
			PrivateKey:  kp.Private,
			LedgerPath:  cfg.Storage.LedgerPath,
			ContentRoot: cfg.Storage.ContentRoot,
			Gossip: gossip.HostConfig{
				ListenAddr:     cfg.Network.ListenAddr,
				BootstrapPeers: cfg.Network.BootstrapPeers,
				DiscoveryTag:   cfg.Network.DiscoveryTag,
				EnableNAT:      cfg.Network.EnableNAT,
			},
			IssuancePolicy: issuance.Policy{
				PowWeight:                    cfg.Issuance.PowWeight,
				PostakeWeight:                cfg.Issuance.PostakeWeight,
				EpochCapPerNode:              cfg.Issuance.EpochCapPerNode,
				RateLimitSeconds:             cfg.Issuance.RateLimitSeconds,
				PostakeContributionThreshold: cfg.Issuance.PostakeContributionThreshold,
				HybridBonusMultiplier:        cfg.Issuance.HybridBonusMultiplier,
			},
		})
	})
	if nodeErr != nil {
		return fmt.Errorf("cashew: bootstrap node: %w", nodeErr)
	}
	return nil
}

// selfIdentity reports the local NodeID without requiring a full node
// bootstrap, for commands that only need to read the identity file.
func selfIdentity(identityPath string) (crypto.Hash, error) {
	mgr := identity.NewManager(identityPath, nil, nil)
	kp, err := mgr.Load("")
	if err != nil {
		return crypto.Hash{}, err
	}
	return crypto.NodeIDFromPublicKey(kp.Public), nil
}
