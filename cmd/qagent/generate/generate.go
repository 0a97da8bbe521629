// Package generatecmder provides the generate command for test cases and
// Selenium scripts.
package generatecmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/qagent/pkg/config"
)

const generateLongDesc string = `Generate QA artifacts with a running qagent server.

  qagent generate tests <query>       Test cases grounded on the knowledge base
  qagent generate selenium ...        A Python Selenium script for one test case

Generation calls the server's configured model and can take a while.`

const generateShortDesc string = "Generate test cases and Selenium scripts"

func NewGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: generateShortDesc,
		Long:  generateLongDesc,
	}

	cmd.AddCommand(newTestsCmd())
	cmd.AddCommand(newSeleniumCmd())

	return cmd
}

// loadClientConfig returns the persisted config for the command's
// --config-dir.
func loadClientConfig(cmd *cobra.Command) (*config.Config, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
