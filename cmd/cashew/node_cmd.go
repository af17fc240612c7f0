package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var nodeCmd = &cobra.Command{
	Use:               "node",
	Short:             "inspect this node's identity and derived state",
	PersistentPreRunE: bootstrapNode,
}

var nodeIDCmd = &cobra.Command{
	Use:   "id",
	Short: "print this node's NodeID",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), appNode.SelfID())
		return nil
	},
}

var nodeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "print a summary of projected node/network/thing counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		snap := appNode.State.CurrentSnapshot()
		fmt.Fprintf(cmd.OutOrStdout(), "nodes=%d networks=%d things=%d epoch=%d\n",
			snap.NodeCount, snap.NetworkCount, snap.ThingCount, snap.Epoch)
		return nil
	},
}

func init() {
	nodeCmd.AddCommand(nodeIDCmd, nodeStatusCmd)
	rootCmd.AddCommand(nodeCmd)
}
