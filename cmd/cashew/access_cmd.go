package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cashew/internal/access"
)

var accessCmd = &cobra.Command{
	Use:               "access",
	Short:             "evaluate the capability policy table",
	PersistentPreRunE: bootstrapNode,
}

var accessNetworkFlag string

var accessCheckCmd = &cobra.Command{
	Use:   "check <node-id> <capability>",
	Short: "check whether a node currently holds a capability",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		node, err := parseNodeID(args[0])
		if err != nil {
			return err
		}
		req := access.Request{Node: node, Capability: access.Capability(args[1])}
		if accessNetworkFlag != "" {
			netID, err := parseNodeID(accessNetworkFlag)
			if err != nil {
				return err
			}
			req.NetworkID = netID
		}
		decision := appNode.Access.CheckAccess(req)
		fmt.Fprintf(cmd.OutOrStdout(), "allowed=%v reason=%s\n", decision.Allowed, decision.Reason)
		return nil
	},
}

func init() {
	accessCheckCmd.Flags().StringVar(&accessNetworkFlag, "network", "", "network id, for network-scoped capabilities")
	accessCmd.AddCommand(accessCheckCmd)
	rootCmd.AddCommand(accessCmd)
}
