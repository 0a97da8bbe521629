// Package clearcmder provides the clear command that empties the knowledge
// base of a running qagent server.
package clearcmder

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/qagent/api/client"
	"github.com/papercomputeco/qagent/pkg/cliui"
	"github.com/papercomputeco/qagent/pkg/config"
)

type clearCommander struct {
	apiTarget string
}

const clearLongDesc string = `Remove every document from the knowledge base of a running qagent server.

The embedding model recorded for the knowledge base is kept, so the store can
be refilled with the same model without a mismatch.

Examples:
  qagent clear`

const clearShortDesc string = "Empty the knowledge base"

func NewClearCmd() *cobra.Command {
	cmder := &clearCommander{}

	cmd := &cobra.Command{
		Use:   "clear",
		Short: clearShortDesc,
		Long:  clearLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed(config.FlagAPITarget) {
				cmder.apiTarget = cfg.Client.APITarget
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *clearCommander) run(ctx context.Context, w io.Writer) error {
	cl, err := client.New(c.apiTarget, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, client.DefaultTimeout)
	defer cancel()

	var before int
	err = cliui.Step(w, "Clearing knowledge base", func() error {
		var err error
		if before, err = cl.Stats(ctx); err != nil {
			return err
		}
		return cl.Clear(ctx)
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  Removed %s chunks.\n\n", cliui.ValueStyle.Render(fmt.Sprint(before)))
	return nil
}
