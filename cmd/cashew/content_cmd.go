package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var contentCmd = &cobra.Command{
	Use:               "content",
	Short:             "put and fetch blobs in the local content store",
	PersistentPreRunE: bootstrapNode,
}

var contentMimeFlag string

var contentPutCmd = &cobra.Command{
	Use:   "put <file>",
	Short: "hash, chunk, and store a file, printing its content hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		meta, err := appNode.Content.Put(data, contentMimeFlag)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  size=%d  chunks=%d\n", meta.ContentHash, meta.Size, meta.ChunkCount)
		return nil
	},
}

var contentGetCmd = &cobra.Command{
	Use:   "get <content-hash> <out-file>",
	Short: "fetch a blob by its content hash and write it to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := parseNodeID(args[0])
		if err != nil {
			return err
		}
		data, ok := appNode.Content.Get(hash)
		if !ok {
			return fmt.Errorf("content: %s not found locally", hash)
		}
		return os.WriteFile(args[1], data, 0o644)
	},
}

func init() {
	contentPutCmd.Flags().StringVar(&contentMimeFlag, "mime", "application/octet-stream", "MIME type to record for the stored blob")
	contentCmd.AddCommand(contentPutCmd, contentGetCmd)
	rootCmd.AddCommand(contentCmd)
}
