package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	apisearch "github.com/papercomputeco/qagent/api/search"
)

var (
	retrieveToolName    = "retrieve_context"
	retrieveDescription = "Retrieve the documentation passages most relevant to a query from the QA knowledge base. Returns a context block where each passage is labelled with its source file, plus the individual matches and their similarity scores."
)

// RetrieveInput represents the input arguments for the retrieve_context tool.
type RetrieveInput struct {
	Query string `json:"query" jsonschema:"the text to find relevant documentation for"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"number of passages to return (default: 3)"`
}

// handleRetrieve processes a retrieve_context request.
func (s *Server) handleRetrieve(ctx context.Context, _ *mcp.CallToolRequest, input RetrieveInput) (*mcp.CallToolResult, apisearch.Output, error) {
	logger := s.config.Logger

	if input.Query == "" {
		return errorResult("query is required"), apisearch.Output{}, nil
	}

	output, err := apisearch.Search(ctx, input.Query, input.TopK, s.config.Retriever, logger)
	if err != nil {
		logger.Error("MCP retrieve failed", "error", err)
		return errorResult("Failed to retrieve context: %v", err), apisearch.Output{}, nil
	}

	result, err := jsonResult(output)
	if err != nil {
		logger.Error("failed to marshal retrieve output", "error", err)
		return errorResult("Failed to serialize results: %v", err), apisearch.Output{}, nil
	}
	return result, *output, nil
}
