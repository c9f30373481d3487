// Package commands implements cadetd's cobra command tree.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cadetmesh/tunnel/pkg/daemon"
)

var (
	listenAddr string
	debugAddr  string

	log *zap.Logger
)

// Execute builds and runs the cadetd root command.
func Execute() error {
	root := &cobra.Command{
		Use:   "cadetd",
		Short: "CADET tunnel daemon",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("cadetd: build logger: %w", err)
			}
			log = l
			return nil
		},
	}

	root.PersistentFlags().StringVar(&listenAddr, "listen", "/ip4/0.0.0.0/tcp/4001", "libp2p listen multiaddr")
	root.PersistentFlags().StringVar(&debugAddr, "debug-addr", "127.0.0.1:7001", "debug HTTP listen address, empty disables it")

	root.AddCommand(serveCmd())
	root.AddCommand(connectCmd())
	root.AddCommand(sendCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	root.SetContext(ctx)

	return root.Execute()
}

func newDaemon() (*daemon.Daemon, error) {
	return daemon.New(daemon.Config{ListenAddr: listenAddr}, log)
}
