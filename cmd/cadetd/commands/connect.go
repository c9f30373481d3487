package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect <multiaddr>",
		Short: "Dial a peer and adopt its tunnel connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDaemon()
			if err != nil {
				return fmt.Errorf("cadetd: start daemon: %w", err)
			}
			defer d.Close()

			info, err := parsePeerAddr(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := d.Host.Connect(ctx, *info); err != nil {
				return fmt.Errorf("cadetd: connect transport to %s: %w", info.ID, err)
			}
			t, err := d.Connect(ctx, info.ID)
			if err != nil {
				return fmt.Errorf("cadetd: adopt tunnel connection: %w", err)
			}
			snap := t.Snapshot()
			log.Info("tunnel connection established",
				zap.String("peer", info.ID.String()),
				zap.Int("connections", snap.Connections))
			return nil
		},
	}
}

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <multiaddr> <message>",
		Short: "Send a message to a peer, dialing it first if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDaemon()
			if err != nil {
				return fmt.Errorf("cadetd: start daemon: %w", err)
			}
			defer d.Close()

			info, err := parsePeerAddr(args[0])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if err := d.Host.Connect(ctx, *info); err != nil {
				return fmt.Errorf("cadetd: connect transport to %s: %w", info.ID, err)
			}
			if _, err := d.Send(ctx, info.ID, 0, []byte(args[1]), nil); err != nil {
				return fmt.Errorf("cadetd: send: %w", err)
			}
			log.Info("message queued", zap.String("peer", info.ID.String()))
			return nil
		},
	}
}

func parsePeerAddr(raw string) (*peer.AddrInfo, error) {
	maddr, err := multiaddr.NewMultiaddr(raw)
	if err != nil {
		return nil, fmt.Errorf("cadetd: parse multiaddr: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return nil, fmt.Errorf("cadetd: extract peer id (need a /p2p/<id> suffix): %w", err)
	}
	return info, nil
}
