// Command r2p2d runs an R2P2 datagram request/response engine.
package main

import (
	"fmt"
	"os"

	"github.com/r2p2/r2p2d/cmd/r2p2d/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
