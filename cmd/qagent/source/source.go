// Package sourcecmder provides the source command that shows how one
// ingested file was chunked.
package sourcecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/qagent/api"
	"github.com/papercomputeco/qagent/api/client"
	"github.com/papercomputeco/qagent/pkg/cliui"
	"github.com/papercomputeco/qagent/pkg/config"
)

type sourceCommander struct {
	apiTarget string
	full      bool
	name      string
}

const sourceLongDesc string = `Show the chunks stored for one ingested file, in order.

Each chunk is printed with its sequence number and a one-line preview. Use
--full to print the chunk text unabridged, which shows the overlap shared by
neighbouring chunks.

Examples:
  qagent source login.md
  qagent source "user guide.pdf" --full`

const sourceShortDesc string = "Show the stored chunks of an ingested file"

const previewWidth = 100

func NewSourceCmd() *cobra.Command {
	cmder := &sourceCommander{}

	cmd := &cobra.Command{
		Use:   "source <file>",
		Short: sourceShortDesc,
		Long:  sourceLongDesc,
		Args:  cobra.ExactArgs(1),
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
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.name = args[0]
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)
	cmd.Flags().BoolVar(&cmder.full, "full", false, "Print every chunk in full")

	return cmd
}

func (c *sourceCommander) run(ctx context.Context, w io.Writer) error {
	cl, err := client.New(c.apiTarget, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, client.DefaultTimeout)
	defer cancel()

	resp, err := cl.Source(ctx, c.name)
	var se *client.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s has not been ingested", c.name)
	}
	if err != nil {
		return err
	}

	PrintChunks(w, resp, c.full)
	return nil
}

// PrintChunks writes a header and one entry per chunk of resp.
func PrintChunks(w io.Writer, resp *api.SourceResponse, full bool) {
	fmt.Fprintf(w, "\n  %s  %s\n\n",
		cliui.HeaderStyle.Render(resp.Source),
		cliui.DimStyle.Render(fmt.Sprintf("%d chunks", len(resp.Chunks))),
	)

	for _, ch := range resp.Chunks {
		label := cliui.KeyStyle.Render(fmt.Sprintf("[%d]", ch.Sequence))
		if full {
			fmt.Fprintf(w, "  %s\n%s\n\n", label, ch.Text)
			continue
		}
		fmt.Fprintf(w, "  %s %s\n", label, cliui.ValueStyle.Render(preview(ch.Text)))
	}
	if !full {
		fmt.Fprintln(w)
	}
}

func preview(text string) string {
	runes := []rune(text)
	flat := make([]rune, 0, len(runes))
	space := false
	for _, r := range runes {
		if r == '\n' || r == '\t' || r == ' ' || r == '\r' {
			if !space && len(flat) > 0 {
				flat = append(flat, ' ')
			}
			space = true
			continue
		}
		space = false
		flat = append(flat, r)
	}
	if len(flat) <= previewWidth {
		return string(flat)
	}
	return string(flat[:previewWidth-3]) + "..."
}
