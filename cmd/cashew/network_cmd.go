package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"cashew/internal/state"
)

var networkCmd = &cobra.Command{
	Use:               "network",
	Short:             "create and inspect replicated networks",
	PersistentPreRunE: bootstrapNode,
}

var networkCreateCmd = &cobra.Command{
	Use:   "create <network-id> <thing-hash> <quorum-min> <quorum-target> <quorum-max>",
	Short: "create a network rooted at the given thing with this node as founder",
	Args:  cobra.ExactArgs(5),
	RunE: func(cmd *cobra.Command, args []string) error {
		netID, err := parseNodeID(args[0])
		if err != nil {
			return err
		}
		thingHash, err := parseNodeID(args[1])
		if err != nil {
			return err
		}
		min, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid quorum-min: %w", err)
		}
		target, err := strconv.Atoi(args[3])
		if err != nil {
			return fmt.Errorf("invalid quorum-target: %w", err)
		}
		max, err := strconv.Atoi(args[4])
		if err != nil {
			return fmt.Errorf("invalid quorum-max: %w", err)
		}
		ev, err := appNode.Network.CreateNetwork(netID, thingHash, appNode.SelfID(), state.Quorum{Min: min, Target: target, Max: max})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ev.EventID)
		return nil
	},
}

var networkRemoveCmd = &cobra.Command{
	Use:   "remove-member <network-id> <member-id> <reason>",
	Short: "remove a member from a network",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		netID, err := parseNodeID(args[0])
		if err != nil {
			return err
		}
		member, err := parseNodeID(args[1])
		if err != nil {
			return err
		}
		ev, err := appNode.Network.RemoveMember(netID, member, args[2])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ev.EventID)
		return nil
	},
}

var networkDisbandCmd = &cobra.Command{
	Use:   "disband <network-id> <reason>",
	Short: "disband a network",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		netID, err := parseNodeID(args[0])
		if err != nil {
			return err
		}
		ev, err := appNode.Network.Disband(netID, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ev.EventID)
		return nil
	},
}

var networkListCmd = &cobra.Command{
	Use:   "list",
	Short: "list every network this node has projected state for",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		for _, n := range appNode.State.AllNetworks() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  thing=%s  members=%d  active=%v\n",
				n.NetworkID, n.ThingHash, len(n.Members), n.IsActive)
		}
		return nil
	},
}

func init() {
	networkCmd.AddCommand(networkCreateCmd, networkRemoveCmd, networkDisbandCmd, networkListCmd)
	rootCmd.AddCommand(networkCmd)
}
