// Package ingestcmder provides the ingest command that uploads documents to
// a running qagent server.
package ingestcmder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/qagent/api"
	"github.com/papercomputeco/qagent/api/client"
	"github.com/papercomputeco/qagent/pkg/cliui"
	"github.com/papercomputeco/qagent/pkg/config"
)

type ingestCommander struct {
	apiTarget string
	files     []string
}

const ingestLongDesc string = `Upload documents into the knowledge base of a running qagent server.

Each file is extracted by its extension (.txt, .md, .json, .yaml, .html, .pdf;
anything else is read as text), split into overlapping chunks and embedded.
Uploading a file with the same name again replaces its earlier chunks.

A file that fails does not stop the others. The command exits non-zero when
any file failed.

Examples:
  qagent ingest docs/login.md docs/checkout.md
  qagent ingest requirements.pdf --api-target http://localhost:8080`

const ingestShortDesc string = "Upload documents into the knowledge base"

func NewIngestCmd() *cobra.Command {
	cmder := &ingestCommander{}

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: ingestShortDesc,
		Long:  ingestLongDesc,
		Args:  cobra.MinimumNArgs(1),
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
			cmder.files = args
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)

	return cmd
}

func (c *ingestCommander) run(ctx context.Context, w io.Writer) error {
	// One request carries every file, so the bound grows with the batch.
	timeout := client.DefaultTimeout * time.Duration(len(c.files))
	cl, err := client.New(c.apiTarget, &http.Client{Timeout: timeout})
	if err != nil {
		return err
	}

	var resp *api.IngestResponse
	err = cliui.Step(w, fmt.Sprintf("Ingesting %d files", len(c.files)), func() error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var err error
		resp, err = cl.Ingest(ctx, c.files)
		return err
	})
	if err != nil {
		return err
	}

	return printResponse(w, resp)
}

func printResponse(w io.Writer, resp *api.IngestResponse) error {
	fmt.Fprintln(w)

	failed := 0
	for _, f := range resp.Files {
		if f.Error != "" {
			failed++
			fmt.Fprintf(w, "  %s %s  %s\n", cliui.FailMark, cliui.KeyStyle.Render(f.Filename), cliui.DimStyle.Render(f.Error))
			continue
		}
		fmt.Fprintf(w, "  %s %s  %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(f.Filename),
			cliui.DimStyle.Render(fmt.Sprintf("%d chunks", f.Chunks)))
	}

	fmt.Fprintf(w, "\n  %s\n\n", cliui.ValueStyle.Render(resp.Message))

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(resp.Files))
	}
	return nil
}
