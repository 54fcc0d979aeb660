// Package main is the entry point for the cardwallet CLI application.
package main

import (
	"fmt"
	"os"

	"github.com/andri/cardwallet/cmd/cardwallet/commands"
)

// These variables are set at build time via ldflags
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, buildDate)

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
