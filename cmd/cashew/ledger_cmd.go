package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:               "ledger",
	Short:             "inspect the local event log",
	PersistentPreRunE: bootstrapNode,
}

var ledgerRecentFlag int

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "list the most recent events",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		for _, ev := range appNode.Ledger.Recent(ledgerRecentFlag) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  epoch=%d  %s  source=%s\n",
				ev.EventID, ev.Epoch, ev.Type, ev.SourceNode)
		}
		return nil
	},
}

var ledgerVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "validate the hash chain of every known node's event log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := appNode.Ledger.ValidateChain(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "chain valid")
		return nil
	},
}

var ledgerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "print the current ledger snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		snap := appNode.Ledger.CurrentSnapshot()
		fmt.Fprintf(cmd.OutOrStdout(), "epoch=%d events=%d latest=%s\n",
			snap.Epoch, snap.EventCount, snap.LatestHash)
		return nil
	},
}

func init() {
	ledgerListCmd.Flags().IntVar(&ledgerRecentFlag, "n", 20, "number of recent events to list")
	ledgerCmd.AddCommand(ledgerListCmd, ledgerVerifyCmd, ledgerStatusCmd)
	rootCmd.AddCommand(ledgerCmd)
}
