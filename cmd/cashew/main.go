// Command cashew is the Cashew node's command line entrypoint: it can run
// the full node plus gateway (`cashew serve`) or act as a thin client
// against a locally running node's on-disk ledger for inspection and
// administrative operations, mirroring cmd/synnergy/main.go and the
// cmd/cli/*.go per-subsystem command pattern.
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
