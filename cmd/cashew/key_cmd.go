package main

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cashew/internal/crypto"
	"cashew/internal/ledger"
)

var keyCmd = &cobra.Command{
	Use:               "key",
	Short:             "inspect and move capability-token keys",
	PersistentPreRunE: bootstrapNode,
}

func parseNodeID(s string) (crypto.Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return crypto.Hash{}, fmt.Errorf("invalid node id %q: %w", s, err)
	}
	return crypto.HashFromBytes(b)
}

func parseKeyType(s string) (ledger.KeyType, error) {
	switch strings.ToUpper(s) {
	case "IDENTITY":
		return ledger.KeyIdentity, nil
	case "NODE":
		return ledger.KeyNode, nil
	case "NETWORK":
		return ledger.KeyNetwork, nil
	case "SERVICE":
		return ledger.KeyService, nil
	case "ROUTING":
		return ledger.KeyRouting, nil
	default:
		return 0, fmt.Errorf("unknown key type %q (want IDENTITY|NODE|NETWORK|SERVICE|ROUTING)", s)
	}
}

var keyBalanceCmd = &cobra.Command{
	Use:   "balance <node-id> <key-type>",
	Short: "print a node's balance of a key type",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		node, err := parseNodeID(args[0])
		if err != nil {
			return err
		}
		kt, err := parseKeyType(args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), appNode.KeyRegistry.Balance(node, kt))
		return nil
	},
}

var keyVouchCmd = &cobra.Command{
	Use:   "vouch <voucher> <vouchee> <key-type>",
	Short: "record a vouch from voucher for vouchee's key type",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		voucher, err := parseNodeID(args[0])
		if err != nil {
			return err
		}
		vouchee, err := parseNodeID(args[1])
		if err != nil {
			return err
		}
		kt, err := parseKeyType(args[2])
		if err != nil {
			return err
		}
		ev, err := appNode.KeyRegistry.Vouch(voucher, vouchee, kt, time.Now().Unix())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ev.EventID)
		return nil
	},
}

var keyTransferCmd = &cobra.Command{
	Use:   "transfer <from> <to> <key-type> <count>",
	Short: "transfer count keys of a type from one node to another",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseNodeID(args[0])
		if err != nil {
			return err
		}
		to, err := parseNodeID(args[1])
		if err != nil {
			return err
		}
		kt, err := parseKeyType(args[2])
		if err != nil {
			return err
		}
		var count uint32
		if _, err := fmt.Sscanf(args[3], "%d", &count); err != nil {
			return fmt.Errorf("invalid count %q: %w", args[3], err)
		}
		ev, err := appNode.KeyRegistry.Transfer(from, to, kt, count)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ev.EventID)
		return nil
	},
}

func init() {
	keyCmd.AddCommand(keyBalanceCmd, keyVouchCmd, keyTransferCmd)
	rootCmd.AddCommand(keyCmd)
}
