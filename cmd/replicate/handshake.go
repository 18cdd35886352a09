package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/synckit/replicate/pkg/handshake"
	"github.com/synckit/replicate/pkg/rpc"
)

var handshakeCmd = &cobra.Command{
	Use:   "handshake <authority-addr>",
	Short: "Query an authority's protocol version and check it against the supported range",
	Args:  cobra.ExactArgs(1),
	RunE:  runHandshake,
}

func init() {
	handshakeCmd.Flags().Int("min", 1, "minimum supported protocol version")
	handshakeCmd.Flags().Int("max", 1, "maximum supported protocol version")
	handshakeCmd.Flags().Duration("timeout", 5*time.Second, "RPC timeout")
	handshakeCmd.Flags().Bool("insecure", false, "use a plaintext connection instead of TLS")
}

func runHandshake(cmd *cobra.Command, args []string) error {
	addr := args[0]
	minVersion, _ := cmd.Flags().GetInt("min")
	maxVersion, _ := cmd.Flags().GetInt("max")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	plaintext, _ := cmd.Flags().GetBool("insecure")

	if !plaintext {
		return fmt.Errorf("handshake: TLS credentials are not wired into this CLI; pass --insecure for a plaintext check")
	}

	cc, err := rpc.Dial(addr, insecure.NewCredentials())
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer cc.Close()

	authority := rpc.NewGRPCAuthority(cc)
	h := handshake.New(authority, handshake.Range{Min: minVersion, Max: maxVersion})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := h.Check(ctx); err != nil {
		return fmt.Errorf("handshake against %s failed: %w", addr, err)
	}

	fmt.Printf("handshake ok: authority %s reports protocol version %d (supported [%d, %d])\n",
		addr, h.RemoteVersion(), minVersion, maxVersion)
	return nil
}
