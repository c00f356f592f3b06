// Command benchctl opens, inspects and serves instrument sessions.
//
// Usage:
//
//	benchctl [--profile <name|path>] [--trace <file>] [--emulate] <command>
//
// Commands:
//
//	validate  Check that a resource name parses and the instrument is reachable
//	open      Open a session, print identity and register snapshot, close
//	console   Interactive session console
//	serve     Serve a session over HTTP with Prometheus metrics
//	trace     Inspect CBOR trace files
//	profile   Show instrument profiles
//
// Examples:
//
//	# Open an emulated instrument
//	benchctl --emulate open TCPIP0::10.0.0.5::INSTR
//
//	# Record a trace while using the console
//	benchctl --trace bench.btrace console TCPIP0::10.0.0.5::5025::SOCKET
//
//	# Show statistics about a trace
//	benchctl trace stats bench.btrace
package main

import (
	"os"

	"github.com/benchlink/benchlink-go/cmd/benchctl/commands"
)

func main() {
	if err := commands.NewRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
