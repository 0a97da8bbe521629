package generatecmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/qagent/api/client"
	"github.com/papercomputeco/qagent/pkg/cliui"
	"github.com/papercomputeco/qagent/pkg/config"
	"github.com/papercomputeco/qagent/pkg/generate"
)

type seleniumCommander struct {
	testCase  string
	htmlPath  string
	outPath   string
	apiTarget string
}

const seleniumLongDesc string = `Generate a Python Selenium script for one test case.

The test case is a JSON object as printed by "qagent generate tests --json".
The HTML of the page under test is sent along so the script can use its real
element locators. The script is printed, or written to --out.

Examples:
  qagent generate selenium --html login.html \
    --test-case '{"Test_ID":"TC001","Feature":"Login","Test_Scenario":"Valid credentials","Expected_Result":"Dashboard shown"}'
  qagent generate selenium --html login.html --test-case "$(jq -c '.[0]' cases.json)" --out test_login.py`

const seleniumShortDesc string = "Generate a Selenium script for a test case"

func newSeleniumCmd() *cobra.Command {
	cmder := &seleniumCommander{}

	cmd := &cobra.Command{
		Use:   "selenium",
		Short: seleniumShortDesc,
		Long:  seleniumLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadClientConfig(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed(config.FlagAPITarget) {
				cmder.apiTarget = cfg.Client.APITarget
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPITarget, &cmder.apiTarget)
	cmd.Flags().StringVar(&cmder.testCase, "test-case", "", "Test case as a JSON object")
	cmd.Flags().StringVar(&cmder.htmlPath, "html", "", "Path to the HTML of the page under test")
	cmd.Flags().StringVarP(&cmder.outPath, "out", "o", "", "Write the script to this file instead of stdout")
	_ = cmd.MarkFlagRequired("test-case")
	_ = cmd.MarkFlagRequired("html")

	return cmd
}

func (c *seleniumCommander) run(ctx context.Context, stdout, stderr io.Writer) error {
	tc, err := ParseTestCase(c.testCase)
	if err != nil {
		return err
	}

	html, err := os.ReadFile(c.htmlPath)
	if err != nil {
		return fmt.Errorf("reading HTML: %w", err)
	}

	cl, err := client.New(c.apiTarget, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, generate.DefaultLLMTimeout+client.DefaultTimeout)
	defer cancel()

	var script string
	err = cliui.Step(stderr, fmt.Sprintf("Generating Selenium script for %s", tc.ID), func() error {
		var err error
		script, err = cl.GenerateSelenium(ctx, tc, string(html))
		return err
	})
	if err != nil {
		return err
	}

	if c.outPath == "" {
		_, err = fmt.Fprintln(stdout, script)
		return err
	}

	if err := os.WriteFile(c.outPath, []byte(script+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing script: %w", err)
	}
	fmt.Fprintf(stderr, "  %s Wrote %s\n", cliui.SuccessMark, cliui.KeyStyle.Render(c.outPath))
	return nil
}

// ParseTestCase decodes one test case given on the command line.
func ParseTestCase(raw string) (generate.TestCase, error) {
	var tc generate.TestCase
	if err := json.Unmarshal([]byte(raw), &tc); err != nil {
		return tc, fmt.Errorf("parsing --test-case: %w", err)
	}
	if tc.ID == "" && tc.Scenario == "" {
		return tc, errors.New("parsing --test-case: an id or scenario is required")
	}
	return tc, nil
}
