package generatecmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/qagent/api"
	"github.com/papercomputeco/qagent/api/client"
	"github.com/papercomputeco/qagent/pkg/cliui"
	"github.com/papercomputeco/qagent/pkg/config"
	"github.com/papercomputeco/qagent/pkg/generate"
)

type testsCommander struct {
	query     string
	topK      uint
	asJSON    bool
	apiTarget string
}

const testsLongDesc string = `Generate test cases for a feature or scenario.

The server retrieves the knowledge base chunks most relevant to the query and
asks its model for test cases grounded only in them. Each case names the
document it came from. The command fails when nothing relevant is stored.

Use --json to print the raw test cases, e.g. to pick one for
"qagent generate selenium".

Examples:
  qagent generate tests "user login"
  qagent generate tests "apply discount code" --top-k 5
  qagent generate tests "password reset" --json > cases.json`

const testsShortDesc string = "Generate test cases from the knowledge base"

func newTestsCmd() *cobra.Command {
	cmder := &testsCommander{}

	cmd := &cobra.Command{
		Use:   "tests <query>",
		Short: testsShortDesc,
		Long:  testsLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadClientConfig(cmd)
			if err != nil {
				return err
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
			return cmder.run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)
	config.AddUintFlag(cmd, config.Flags, config.FlagTopK, &cmder.topK)
	cmd.Flags().BoolVar(&cmder.asJSON, "json", false, "Print the test cases as JSON")

	return cmd
}

func (c *testsCommander) run(ctx context.Context, stdout, stderr io.Writer) error {
	cl, err := client.New(c.apiTarget, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, generate.DefaultLLMTimeout+client.DefaultTimeout)
	defer cancel()

	var resp *api.TestCasesResponse
	err = cliui.Step(stderr, "Generating test cases", func() error {
		var err error
		resp, err = cl.GenerateTests(ctx, c.query, int(c.topK))
		return err
	})
	if errors.Is(err, client.ErrNoContext) {
		return errors.New("no relevant context found in knowledge base; ingest documents first")
	}
	if err != nil {
		return err
	}

	if c.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp.TestCases)
	}

	md := TestCasesMarkdown(resp)
	rendered, err := cliui.RenderMarkdown(md)
	if err != nil {
		rendered = md
	}
	_, err = fmt.Fprint(stdout, rendered)
	return err
}

// TestCasesMarkdown renders a generation response as a markdown table
// followed by the list of source documents.
func TestCasesMarkdown(resp *api.TestCasesResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Test cases for %q\n\n", resp.Query)

	if len(resp.TestCases) == 0 {
		b.WriteString("_The model returned no parseable test cases._\n")
	} else {
		b.WriteString("| ID | Feature | Scenario | Expected result | Grounded in |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, tc := range resp.TestCases {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				cell(tc.ID), cell(tc.Feature), cell(tc.Scenario), cell(tc.ExpectedResult), cell(tc.GroundedIn))
		}
	}

	if len(resp.Sources) > 0 {
		b.WriteString("\n**Sources**\n\n")
		for _, s := range resp.Sources {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}

	return b.String()
}

// cell makes s safe inside a markdown table cell.
func cell(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
