// Command tracelisten is the control-protocol daemon and CLI: it accepts
// TINIT/RINIT control sessions as a server, drives them as a client via
// `record --connect`, and parses event-hook descriptors.
package main

import (
	"fmt"
	"os"

	"github.com/marmos91/tracelisten/cmd/tracelisten/commands"

	// Import prometheus metrics to register its constructors' init() functions.
	_ "github.com/marmos91/tracelisten/pkg/metrics/prometheus"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
