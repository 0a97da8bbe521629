package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	statsToolName    = "knowledge_stats"
	statsDescription = "Report how many documentation chunks are stored in the QA knowledge base."
)

// StatsInput takes no arguments.
type StatsInput struct{}

// StatsOutput represents the output of the knowledge_stats tool.
type StatsOutput struct {
	Documents int `json:"documents"`
}

func (s *Server) handleStats(ctx context.Context, _ *mcp.CallToolRequest, _ StatsInput) (*mcp.CallToolResult, StatsOutput, error) {
	n, err := s.config.Counter.Count(ctx)
	if err != nil {
		s.config.Logger.Error("MCP stats failed", "error", err)
		return errorResult("Failed to count documents: %v", err), StatsOutput{}, nil
	}

	output := StatsOutput{Documents: n}
	result, err := jsonResult(output)
	if err != nil {
		return errorResult("Failed to serialize results: %v", err), StatsOutput{}, nil
	}
	return result, output, nil
}
