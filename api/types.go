package api

import (
	"github.com/papercomputeco/qagent/pkg/generate"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ValidationErrorResponse lists the request fields that failed validation.
type ValidationErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// QueryRequest is the body of /v1/retrieve and /v1/generate/tests.
type QueryRequest struct {
	Query string `json:"query" validate:"required"`
	TopK  int    `json:"top_k" validate:"gte=0,lte=100"`
}

// SeleniumRequest is the body of /v1/generate/selenium.
type SeleniumRequest struct {
	TestCase    generate.TestCase `json:"test_case"`
	HTMLContent string            `json:"html_content" validate:"required"`
}

// IngestFileResult is the outcome for one uploaded file.
type IngestFileResult struct {
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
	Error    string `json:"error,omitempty"`
}

// IngestResponse is the body returned by /v1/ingest.
type IngestResponse struct {
	Message     string             `json:"message"`
	Files       []IngestFileResult `json:"files"`
	TotalChunks int                `json:"total_chunks"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// SourceChunk is one stored chunk of a source.
type SourceChunk struct {
	Sequence int    `json:"sequence"`
	Text     string `json:"text"`
}

// SourceResponse is the body returned by GET /v1/sources/:source.
type SourceResponse struct {
	Source string        `json:"source"`
	Chunks []SourceChunk `json:"chunks"`
}

// StatsResponse is the body returned by /v1/stats.
type StatsResponse struct {
	Documents int `json:"documents"`
}

// TestCasesResponse is the body returned by /v1/generate/tests.
type TestCasesResponse struct {
	Query        string              `json:"query"`
	TestCases    []generate.TestCase `json:"test_cases"`
	Sources      []string            `json:"sources"`
	PromptTokens int                 `json:"prompt_tokens"`
}

// SeleniumResponse is the body returned by /v1/generate/selenium.
type SeleniumResponse struct {
	SeleniumScript string `json:"selenium_script"`
}
