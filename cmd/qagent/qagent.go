// Package qagentcmder
package qagentcmder

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	clearcmder "github.com/papercomputeco/qagent/cmd/qagent/clear"
	configcmder "github.com/papercomputeco/qagent/cmd/qagent/config"
	generatecmder "github.com/papercomputeco/qagent/cmd/qagent/generate"
	ingestcmder "github.com/papercomputeco/qagent/cmd/qagent/ingest"
	initcmder "github.com/papercomputeco/qagent/cmd/qagent/init"
	searchcmder "github.com/papercomputeco/qagent/cmd/qagent/search"
	servecmder "github.com/papercomputeco/qagent/cmd/qagent/serve"
	sourcecmder "github.com/papercomputeco/qagent/cmd/qagent/source"
	versioncmder "github.com/papercomputeco/qagent/cmd/version"
)

const qagentLongDesc string = `qagent turns product documentation into QA test cases and Selenium scripts.

Documents are chunked, embedded and stored in a knowledge base. Test cases are
generated from the chunks most relevant to a query, and every case names the
document it came from.

Run the server, then talk to it:
  qagent serve                        Run the API server
  qagent serve --watch ./docs         Also ingest a directory in the background
  qagent ingest docs/*.md             Upload documents
  qagent search "password reset"      Show the most relevant chunks
  qagent source login.md              Show how a document was chunked
  qagent generate tests "login"       Generate test cases
  qagent generate selenium ...        Generate a Selenium script for a test case`

const qagentShortDesc string = "qagent - QA test generation from documentation"

func NewQagentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "qagent",
		Short:         qagentShortDesc,
		Long:          qagentLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadDotEnv()
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .qagent/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(ingestcmder.NewIngestCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(generatecmder.NewGenerateCmd())
	cmd.AddCommand(sourcecmder.NewSourceCmd())
	cmd.AddCommand(clearcmder.NewClearCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}

// loadDotEnv loads ./.env into the process environment so provider API keys
// can live next to the project. Variables already set are not overridden.
func loadDotEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading .env: %w", err)
}
