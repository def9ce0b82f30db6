package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/cuemby/collabcore/pkg/kvstore"
	"github.com/cuemby/collabcore/pkg/log"
	"github.com/cuemby/collabcore/pkg/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a demo Sync server that acks every inbound frame",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("listen", ":9090", "Address to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	listen, _ := cmd.Flags().GetString("listen")

	store, err := kvstore.Open(dataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	lis, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	grpcServer := grpc.NewServer()
	demo := &transport.Server{}
	demo.Register(grpcServer)

	log.WithComponent("serve").Info().Str("addr", listen).Msg("starting demo sync server")
	return grpcServer.Serve(lis)
}
