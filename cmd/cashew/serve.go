package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	cmdconfig "cashew/cmd/cashew/config"
	"cashew/internal/gateway"
)

var serveCmd = &cobra.Command{
	Use:               "serve",
	Short:             "run the node and its HTTP/WebSocket gateway until interrupted",
	PersistentPreRunE: bootstrapNode,
	RunE:              runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := appNode.Start(); err != nil {
		return err
	}
	defer appNode.Stop()

	gw := gateway.NewServer(appNode, gateway.Config{
		ListenAddr:        cmdconfig.AppConfig.Gateway.ListenAddr,
		CORSOrigin:        cmdconfig.AppConfig.Gateway.CORSOrigin,
		SessionTTL:        time.Duration(cmdconfig.AppConfig.Gateway.SessionTTLSeconds) * time.Second,
		RequestsPerMinute: cmdconfig.AppConfig.Gateway.RequestsPerMinute,
		RequestsPerHour:   cmdconfig.AppConfig.Gateway.RequestsPerHour,
		MaxBodyBytes:      cmdconfig.AppConfig.Gateway.MaxBodyBytes,
	})
	if err := gw.Start(); err != nil {
		return err
	}
	defer gw.Stop()

	cmd.Printf("cashew node %s serving on %s\n", appNode.SelfID(), cmdconfig.AppConfig.Gateway.ListenAddr)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return nil
}
