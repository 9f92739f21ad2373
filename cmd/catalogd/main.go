// Command catalogd runs the track catalog: a ledger of actors reachable over
// HTTP, plus offline tools for deriving addresses and simulating requests.
package main

import (
	"os"
)

// Build information injected via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
