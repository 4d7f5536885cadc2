// Command grounder is the entry point for the grounder retrieval service.
// It provides a CLI interface (via Cobra) for building the semantic index
// and an HTTP server exposing the retrieval API.
package main

import (
	"fmt"
	"os"

	"github.com/grounder-ai/grounder/cmd/grounder/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
