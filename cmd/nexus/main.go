// Command nexus scores files for threats, aggregates GRC risk and serves the
// HTTP API.
// Usage: go run ./cmd/nexus [command]
package main

import (
	"fmt"
	"os"

	"github.com/raysh454/nexus/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
