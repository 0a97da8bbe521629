// Package searchcmder provides the search command for similarity search over
// the knowledge base.
package searchcmder

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/qagent/api/client"
	apisearch "github.com/papercomputeco/qagent/api/search"
	"github.com/papercomputeco/qagent/pkg/config"
)

var (
	rankStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	scoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	sourceStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	previewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
)

const previewWidth = 160

type searchCommander struct {
	query string
	topK  uint
	quiet bool

	apiTarget string
}

const searchLongDesc string = `Search the knowledge base of a running qagent server.

Returns the chunks most similar to the query, best first, with the document
each came from. These are the chunks "qagent generate tests" would ground its
test cases on.

Use --quiet to print only the distinct source names, one per line.

Examples:
  qagent search "password reset"
  qagent search "checkout with coupon" --top-k 5
  qagent search "login" --quiet`

const searchShortDesc string = "Search the knowledge base"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
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
			if !cmd.Flags().Changed(config.FlagTopK) {
				cmder.topK = cfg.Retrieval.TopK
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)
	config.AddUintFlag(cmd, config.Flags, config.FlagTopK, &cmder.topK)
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only source names, one per line (for piping)")

	return cmd
}

func (c *searchCommander) run(ctx context.Context, w io.Writer) error {
	cl, err := client.New(c.apiTarget, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, client.DefaultTimeout)
	defer cancel()

	output, err := cl.Search(ctx, c.query, int(c.topK))
	if err != nil {
		return err
	}

	if c.quiet {
		for _, source := range output.Sources {
			fmt.Fprintln(w, source)
		}
		return nil
	}

	if output.Count == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	fmt.Fprintf(w, "\n%s %s\n\n",
		headerStyle.Render("Search Results for:"),
		sourceStyle.Render(fmt.Sprintf("%q", output.Query)),
	)

	for i, result := range output.Results {
		printResult(w, i+1, result)
	}

	return nil
}

func printResult(w io.Writer, rank int, result apisearch.Result) {
	fmt.Fprintf(w, "  %s  %s  %s\n",
		rankStyle.Render(fmt.Sprintf("#%d", rank)),
		scoreStyle.Render(fmt.Sprintf("score: %.4f", result.Score)),
		sourceStyle.Render(fmt.Sprintf("%s [%d]", result.Source, result.Sequence)),
	)
	fmt.Fprintf(w, "  %s\n\n", previewStyle.Render(Preview(result.Content, previewWidth)))
}

// Preview flattens content to one line and truncates it to width runes.
func Preview(content string, width int) string {
	flat := strings.Join(strings.Fields(content), " ")
	runes := []rune(flat)
	if len(runes) <= width {
		return flat
	}
	return string(runes[:width-3]) + "..."
}
