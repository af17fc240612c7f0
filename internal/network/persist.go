package network

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"cashew/internal/state"
)

// networkFile is the on-disk YAML shape for ./data/networks/<id>.yaml, per
// spec §6.2: ID, thing hash, members with roles, quorum, timestamps.
type networkFile struct {
	NetworkID   string            `yaml:"network_id"`
	ThingHash   string            `yaml:"thing_hash"`
	CreatedAt   int64             `yaml:"created_at"`
	IsActive    bool              `yaml:"is_active"`
	Members     map[string]string `yaml:"members"` // node id -> role
	QuorumMin   int               `yaml:"quorum_min"`
	QuorumTgt   int               `yaml:"quorum_target"`
	QuorumMax   int               `yaml:"quorum_max"`
}

func toNetworkFile(n *state.NetworkState) networkFile {
	members := make(map[string]string, len(n.Members))
	for id := range n.Members {
		role := n.MemberRoles[id]
		members[id.String()] = string(role)
	}
	return networkFile{
		NetworkID: n.NetworkID.String(),
		ThingHash: n.ThingHash.String(),
		CreatedAt: n.CreatedAt,
		IsActive:  n.IsActive,
		Members:   members,
		QuorumMin: n.Quorum.Min,
		QuorumTgt: n.Quorum.Target,
		QuorumMax: n.Quorum.Max,
	}
}

// PersistNetwork writes net's current derived state to
// <dataDir>/networks/<id>.yaml, overwriting any prior snapshot. Persistence
// is a cache of projector state, not the source of truth: on restart the
// ledger replay in internal/state rebuilds the authoritative view, and this
// file is only read by out-of-process tooling that wants a human-readable
// snapshot without replaying the whole log.
func PersistNetwork(dataDir string, n *state.NetworkState) error {
	dir := filepath.Join(dataDir, "networks")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("network: persist: %w", err)
	}
	b, err := yaml.Marshal(toNetworkFile(n))
	if err != nil {
		return fmt.Errorf("network: persist: marshal: %w", err)
	}
	path := filepath.Join(dir, n.NetworkID.String()+".yaml")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("network: persist: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("network: persist: rename: %w", err)
	}
	return nil
}

// PersistAll snapshots every network the projector knows about.
func PersistAll(dataDir string, st *state.Projector) error {
	for _, n := range st.AllNetworks() {
		if err := PersistNetwork(dataDir, n); err != nil {
			return err
		}
	}
	return nil
}

// LoadNetworkFile reads and parses a previously persisted snapshot. It is
// diagnostic only: callers should replay the ledger to get an authoritative
// NetworkState rather than trusting this file as live state.
func LoadNetworkFile(dataDir, networkID string) (networkFile, error) {
	var nf networkFile
	path := filepath.Join(dataDir, "networks", networkID+".yaml")
	b, err := os.ReadFile(path)
	if err != nil {
		return nf, fmt.Errorf("network: load: %w", err)
	}
	if err := yaml.Unmarshal(b, &nf); err != nil {
		return nf, fmt.Errorf("network: load: unmarshal: %w", err)
	}
	return nf, nil
}
