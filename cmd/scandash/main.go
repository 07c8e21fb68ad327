// Command scandash is the entry point for the scan dashboard CLI and
// server.
package main

import (
	"github.com/scandash/scandash/cmd/cli"
)

// Build information - set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
