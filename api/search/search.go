// Package search provides shared search types and logic for semantic search
// over the knowledge base. It is used by both the REST API endpoint and the
// MCP server tools.
package search

import (
	"context"
	"log/slog"

	"github.com/papercomputeco/qagent/pkg/knowledge"
	"github.com/papercomputeco/qagent/pkg/retrieval"
)

// Retriever looks up formatted context and matches for a query.
type Retriever interface {
	Lookup(ctx context.Context, query string, k int) (*retrieval.Result, error)
}

// Result represents a single matching chunk.
type Result struct {
	Source   string  `json:"source"`
	Sequence int     `json:"sequence"`
	Score    float32 `json:"score"`
	Content  string  `json:"content"`
}

// Output represents the output of a search operation.
type Output struct {
	Query   string   `json:"query"`
	Context string   `json:"context"`
	Sources []string `json:"sources"`
	Results []Result `json:"results"`
	Count   int      `json:"count"`
}

// Search retrieves the topK chunks nearest to query. topK <= 0 uses the
// retriever's default.
func Search(ctx context.Context, query string, topK int, retriever Retriever, logger *slog.Logger) (*Output, error) {
	logger.Debug("search request",
		"query", query,
		"top_k", topK,
	)

	res, err := retriever.Lookup(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(res.Matches))
	for _, m := range res.Matches {
		results = append(results, BuildResult(m))
	}

	sources := res.Sources()
	if sources == nil {
		sources = []string{}
	}

	return &Output{
		Query:   query,
		Context: res.Context,
		Sources: sources,
		Results: results,
		Count:   len(results),
	}, nil
}

// BuildResult converts a knowledge base match into a Result.
func BuildResult(m knowledge.Match) Result {
	return Result{
		Source:   m.Source,
		Sequence: m.Sequence,
		Score:    m.Score,
		Content:  m.Text,
	}
}
