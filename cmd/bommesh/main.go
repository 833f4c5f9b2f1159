// Command bommesh matches bill-of-materials rows to 3D mesh parts, either
// one-shot over local files or as an HTTP service.
package main

import (
	"os"

	"github.com/turtacn/BOMMesh/internal/interfaces/cli"
)

// Build-time variables injected via ldflags.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func init() {
	cli.Version = version
	cli.GitCommit = commit
	cli.BuildDate = buildDate
}

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
