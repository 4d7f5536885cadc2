// Package commands defines all Cobra CLI commands for the grounder binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/grounder-ai/grounder/internal/audit"
	"github.com/grounder-ai/grounder/internal/config"
	"github.com/grounder-ai/grounder/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "grounder",
		Short: "Grounder — semantic retrieval over your document corpus",
		Long: `Grounder builds a searchable semantic index over a directory of text and
markdown documents and answers natural language questions with verbatim,
citable excerpts.

Indexing splits each document into overlapping chunks, embeds them, and
publishes the result as an immutable corpus version. Retrieval embeds the
question, finds the nearest chunks in the vector service, and returns their
exact text with source attribution.

Embedding provider is selected via the EMBEDDING_PROVIDER environment
variable or a YAML config file (~/.grounder/config.yaml).
See 'grounder --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// A local .env is a convenience for development; absence is fine.
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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.grounder/config.yaml)")

	root.AddCommand(
		NewIndexCmd(),
		NewRetrieveCmd(),
		NewServeCmd(),
		NewRunsCmd(),
		NewVersionCmd(),
	)

	return root
}
