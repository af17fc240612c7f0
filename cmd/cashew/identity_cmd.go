package main

import (
	"fmt"

	"github.com/spf13/cobra"

	cmdconfig "cashew/cmd/cashew/config"
	"cashew/internal/crypto"
	"cashew/internal/identity"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "manage the local node's Ed25519 identity file",
}

var identityPasswordFlag string
var identityMnemonicFlag bool

var identityGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "generate and save a fresh identity, overwriting any existing file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := cmdconfig.LoadConfigSafe(envFlag)
		if err != nil {
			return err
		}
		kp, mnemonic, err := identity.Generate(identityMnemonicFlag)
		if err != nil {
			return err
		}
		mgr := identity.NewManager(cfg.Storage.IdentityPath, nil, nil)
		if err := mgr.Save(kp, identityPasswordFlag); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "node id: %s\n", crypto.NodeIDFromPublicKey(kp.Public))
		if mnemonic != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "backup phrase: %s\n", mnemonic)
		}
		return nil
	},
}

var identityShowCmd = &cobra.Command{
	Use:   "show",
	Short: "print the local node's NodeID",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := cmdconfig.LoadConfigSafe(envFlag)
		if err != nil {
			return err
		}
		id, err := selfIdentity(cfg.Storage.IdentityPath)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id.String())
		return nil
	},
}

func init() {
	identityGenerateCmd.Flags().StringVar(&identityPasswordFlag, "password", "", "encrypt the saved private key under this password")
	identityGenerateCmd.Flags().BoolVar(&identityMnemonicFlag, "mnemonic", false, "also print a BIP-39 backup phrase")
	identityCmd.AddCommand(identityGenerateCmd, identityShowCmd)
	rootCmd.AddCommand(identityCmd)
}
