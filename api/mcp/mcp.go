// Package mcp provides an MCP (Model Context Protocol) server exposing the
// qagent knowledge base to agents.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	apisearch "github.com/papercomputeco/qagent/api/search"
	"github.com/papercomputeco/qagent/pkg/generate"
	"github.com/papercomputeco/qagent/pkg/logger"
	"github.com/papercomputeco/qagent/pkg/utils"
)

// Generator produces grounded test cases.
type Generator interface {
	TestCases(ctx context.Context, query string, k int) (*generate.TestCaseResult, error)
}

// Counter reports the number of stored chunks.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

type Config struct {
	// Retriever backs the retrieve_context tool.
	Retriever apisearch.Retriever

	// Counter backs the knowledge_stats tool.
	Counter Counter

	// Generator backs the generate_test_cases tool, which is only
	// registered when set.
	Generator Generator

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the knowledge base tools.
func NewServer(c Config) (*Server, error) {
	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "qagent",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)
	s.mcpServer = mcpServer

	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	if c.Noop {
		// tools stay unregistered when MCP capabilities are disabled
		return s, nil
	}

	if c.Retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if c.Counter == nil {
		return nil, errors.New("counter is required")
	}

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        retrieveToolName,
		Description: retrieveDescription,
	}, s.handleRetrieve)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        statsToolName,
		Description: statsDescription,
	}, s.handleStats)

	if c.Generator != nil {
		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        generateToolName,
			Description: generateDescription,
		}, s.handleGenerate)
	}

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// errorResult reports a tool failure to the calling agent.
func errorResult(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

// jsonResult serializes structured output as JSON text content alongside
// the structured result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(data)},
		},
	}, nil
}
