// Package generate asks a generative model for QA test cases grounded in
// retrieved knowledge base context, and for Selenium scripts that automate
// them.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/papercomputeco/qagent/pkg/eventstream"
	"github.com/papercomputeco/qagent/pkg/eventstream/nop"
	"github.com/papercomputeco/qagent/pkg/logger"
	"github.com/papercomputeco/qagent/pkg/retrieval"
)

// ErrNoContext is returned by TestCases when the knowledge base holds
// nothing relevant to the query. The model is not called.
var ErrNoContext = errors.New("no relevant context found in knowledge base")

// Retriever looks up formatted context for a query.
type Retriever interface {
	Lookup(ctx context.Context, query string, k int) (*retrieval.Result, error)
}

// Config configures a Service.
type Config struct {
	Retriever Retriever
	LLM       LLMCallFunc

	// Publisher receives a generated event per TestCases run. Defaults to
	// the no-op publisher.
	Publisher eventstream.Publisher

	Logger *slog.Logger
}

// Service generates test cases and scripts.
type Service struct {
	retriever Retriever
	llm       LLMCallFunc
	publisher eventstream.Publisher
	logger    *slog.Logger
}

// TestCaseResult is the outcome of a TestCases call.
type TestCaseResult struct {
	TestCases []TestCase

	// Sources are the files the context was drawn from.
	Sources []string

	// PromptTokens is the cl100k_base size of the prompt sent to the model.
	PromptTokens int
}

// NewService creates a generation Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if cfg.LLM == nil {
		return nil, errors.New("llm caller is required")
	}
	if cfg.Publisher == nil {
		cfg.Publisher = nop.NewPublisher()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	return &Service{
		retriever: cfg.Retriever,
		llm:       cfg.LLM,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
	}, nil
}

// TestCases retrieves the k most relevant chunks for query and asks the
// model for test cases grounded in them. Unparseable model output yields an
// empty list, not an error.
func (s *Service) TestCases(ctx context.Context, query string, k int) (*TestCaseResult, error) {
	res, err := s.retriever.Lookup(ctx, query, k)
	if err != nil {
		return nil, err
	}
	if res.Context == "" {
		return nil, ErrNoContext
	}

	prompt := TestCasePrompt(res.Context, query)
	tokens := CountTokens(prompt, s.logger)

	s.logger.Debug("generating test cases",
		"query", query,
		"sources", len(res.Sources()),
		"prompt_tokens", tokens,
	)

	raw, err := s.llm(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating test cases: %w", err)
	}

	cases, err := ParseTestCases(raw)
	if err != nil {
		s.logger.Warn("could not parse generated test cases",
			"query", query,
			"error", err,
		)
		cases = []TestCase{}
	}

	s.logger.Info("generated test cases",
		"query", query,
		"test_cases", len(cases),
	)

	event := eventstream.NewEvent(eventstream.EventTypeTestsGenerated)
	event.Query = query
	event.TestCases = len(cases)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish generation event", "error", err)
	}

	return &TestCaseResult{
		TestCases:    cases,
		Sources:      res.Sources(),
		PromptTokens: tokens,
	}, nil
}

// Script asks the model for a Python Selenium script automating tc against
// the given page HTML. Markdown fences are stripped from the answer.
func (s *Service) Script(ctx context.Context, tc TestCase, html string) (string, error) {
	prompt, err := SeleniumPrompt(tc, html)
	if err != nil {
		return "", err
	}

	raw, err := s.llm(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generating selenium script: %w", err)
	}

	script := StripFence(raw)
	s.logger.Info("generated selenium script",
		"test_id", tc.ID,
		"lines", strings.Count(script, "\n")+1,
	)
	return script, nil
}
