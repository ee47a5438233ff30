// Package commands defines all Cobra CLI commands for the mekonggpt binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mekonggpt/retrieval-go/internal/audit"
	"github.com/mekonggpt/retrieval-go/internal/config"
	"github.com/mekonggpt/retrieval-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mekonggpt",
		Short: "MekongGPT — retrieval-augmented question answering over your documents",
		Long: `MekongGPT is a retrieval-augmented QA service. Documents are chunked,
embedded, and stored in a Qdrant vector collection; questions are answered
by retrieving the most relevant chunks and asking a chat completion model.

The HTTP server also relays answers to Zalo chat users via the platform's
OAuth message API.

Configuration is read from env vars, optionally layered over a YAML file
(~/.mekonggpt/config.yaml). A .env file in the working directory is loaded
first. See 'mekonggpt --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A .env file supplies local-dev env vars; already-set env
			// vars are never overwritten, and a missing file is fine.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.mekonggpt/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewVersionCmd(),
	)

	return root
}
