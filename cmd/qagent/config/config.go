// Package configcmder provides the config command for managing persistent
// qagent configuration stored in the .qagent/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent qagent configuration.

Configuration is stored as config.toml in the .qagent/ directory and provides
default values for command flags. CLI flags and QAGENT_* environment
variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  api.listen, client.api_target,
  vector_store.provider, vector_store.target, vector_store.path, vector_store.collection,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  generation.provider, generation.target, generation.model,
  retrieval.top_k, ingest.watch_dir, ingest.workers,
  eventstream.provider, eventstream.brokers, eventstream.topic

Use subcommands to get, set, or list configuration values:
  qagent config set <key> <value>    Set a configuration value
  qagent config get <key>            Get a configuration value
  qagent config list                 List all configuration values

Examples:
  qagent config set generation.provider anthropic
  qagent config set vector_store.provider qdrant
  qagent config get embedding.model
  qagent config list`

const configShortDesc string = "Manage persistent qagent configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
