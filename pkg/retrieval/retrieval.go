// Package retrieval turns knowledge base matches into the context string
// handed to the generative model.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/qagent/pkg/knowledge"
	"github.com/papercomputeco/qagent/pkg/logger"
)

// DefaultTopK is the number of chunks retrieved when the caller does not ask
// for a specific number.
const DefaultTopK = 3

// Searcher finds the chunks nearest to a query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]knowledge.Match, error)
}

// Config configures a Service.
type Config struct {
	Searcher Searcher

	// TopK is used when a call passes k <= 0. Defaults to DefaultTopK.
	TopK int

	Logger *slog.Logger
}

// Service is the read path of the knowledge base.
type Service struct {
	searcher Searcher
	topK     int
	logger   *slog.Logger
}

// Result is the outcome of a retrieval: the formatted context and the
// matches it was built from, most similar first.
type Result struct {
	Context string
	Matches []knowledge.Match
}

// Sources returns the distinct sources of the matches in first-seen order.
func (r *Result) Sources() []string {
	seen := make(map[string]struct{}, len(r.Matches))
	var out []string
	for _, m := range r.Matches {
		if _, ok := seen[m.Source]; ok {
			continue
		}
		seen[m.Source] = struct{}{}
		out = append(out, m.Source)
	}
	return out
}

// NewService creates a retrieval Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	return &Service{
		searcher: cfg.Searcher,
		topK:     cfg.TopK,
		logger:   cfg.Logger,
	}, nil
}

// Retrieve returns the context string for query built from the k nearest
// chunks, or "" when nothing matches. k <= 0 uses the configured default.
func (s *Service) Retrieve(ctx context.Context, query string, k int) (string, error) {
	res, err := s.Lookup(ctx, query, k)
	if err != nil {
		return "", err
	}
	return res.Context, nil
}

// Search returns the k nearest matches for query.
func (s *Service) Search(ctx context.Context, query string, k int) ([]knowledge.Match, error) {
	res, err := s.Lookup(ctx, query, k)
	if err != nil {
		return nil, err
	}
	return res.Matches, nil
}

// Lookup searches the knowledge base and formats the matches.
func (s *Service) Lookup(ctx context.Context, query string, k int) (*Result, error) {
	if k <= 0 {
		k = s.topK
	}

	matches, err := s.searcher.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("retrieving context for %q: %w", query, err)
	}

	s.logger.Debug("retrieved context",
		"query", query,
		"top_k", k,
		"matches", len(matches),
	)

	return &Result{
		Context: FormatContext(matches),
		Matches: matches,
	}, nil
}

// FormatContext renders matches as "Source: <source>\nContent: <text>\n\n"
// blocks in the order given.
func FormatContext(matches []knowledge.Match) string {
	var b strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&b, "Source: %s\nContent: %s\n\n", m.Source, m.Text)
	}
	return b.String()
}
