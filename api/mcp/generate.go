package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/qagent/pkg/generate"
)

var (
	generateToolName    = "generate_test_cases"
	generateDescription = "Generate QA test cases for a feature or user flow, grounded only in the documentation stored in the knowledge base. Each test case names the source file it is grounded in."
)

// GenerateInput represents the input arguments for the generate_test_cases tool.
type GenerateInput struct {
	Query string `json:"query" jsonschema:"the feature or flow to write test cases for"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"number of documentation passages to ground the test cases in (default: 3)"`
}

// GenerateOutput represents the output of the generate_test_cases tool.
type GenerateOutput struct {
	Query     string              `json:"query"`
	TestCases []generate.TestCase `json:"test_cases"`
	Sources   []string            `json:"sources"`
}

func (s *Server) handleGenerate(ctx context.Context, _ *mcp.CallToolRequest, input GenerateInput) (*mcp.CallToolResult, GenerateOutput, error) {
	logger := s.config.Logger

	if input.Query == "" {
		return errorResult("query is required"), GenerateOutput{}, nil
	}

	res, err := s.config.Generator.TestCases(ctx, input.Query, input.TopK)
	if errors.Is(err, generate.ErrNoContext) {
		return errorResult("No relevant context found in knowledge base."), GenerateOutput{}, nil
	}
	if err != nil {
		logger.Error("MCP generate failed", "error", err)
		return errorResult("Failed to generate test cases: %v", err), GenerateOutput{}, nil
	}

	output := GenerateOutput{
		Query:     input.Query,
		TestCases: res.TestCases,
		Sources:   res.Sources,
	}
	result, err := jsonResult(output)
	if err != nil {
		return errorResult("Failed to serialize results: %v", err), GenerateOutput{}, nil
	}
	return result, output, nil
}
