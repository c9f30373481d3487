package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cadetmesh/tunnel/pkg/daemon"
)

// serveCmd starts the libp2p host, the tunnel stream listener, and the
// optional debug HTTP server, and blocks until interrupted.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the tunnel daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newDaemon()
			if err != nil {
				return fmt.Errorf("cadetd: start daemon: %w", err)
			}
			defer d.Close()

			for _, addr := range d.Addrs() {
				log.Info("listening", zap.String("addr", addr))
			}

			ctx := cmd.Context()

			if debugAddr == "" {
				<-ctx.Done()
				return nil
			}

			debugSrv := daemon.NewDebugServer(d, debugAddr)
			log.Info("debug server starting", zap.String("addr", debugAddr))
			return debugSrv.Start(ctx)
		},
	}
}
