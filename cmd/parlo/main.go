// Package main is the entry point for the parlo CLI.
//
// Usage:
//
//	parlo [flags] <command> [args]
//
// Commands:
//
//	serve      - Run the voice-assistant HTTP backend
//	chat       - Interactive chat against the orchestrator in the terminal
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/parlo-ai/parlo/cmd/parlo/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
