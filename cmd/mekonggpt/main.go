// Command mekonggpt is the entry point for the MekongGPT retrieval service.
// It provides a CLI interface (via Cobra) with subcommands to run the HTTP
// server and ingest documents into the vector store.
package main

import (
	"fmt"
	"os"

	"github.com/mekonggpt/retrieval-go/cmd/mekonggpt/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
