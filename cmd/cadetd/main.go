// Command cadetd runs the CADET tunnel daemon: a libp2p host that
// accepts and maintains encrypted tunnels to peers, multiplexing
// application channels over each.
package main

import (
	"fmt"
	"os"

	"github.com/cadetmesh/tunnel/cmd/cadetd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
