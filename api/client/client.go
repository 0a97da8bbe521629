// Package client is an HTTP client for the qagent API, shared by the CLI
// commands that talk to a running server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/papercomputeco/qagent/api"
	apisearch "github.com/papercomputeco/qagent/api/search"
	"github.com/papercomputeco/qagent/pkg/generate"
)

const (
	// DefaultTimeout bounds requests that do not call a generative model.
	DefaultTimeout = 60 * time.Second

	// DefaultClientTimeout bounds every request of a Client built without
	// its own *http.Client. It leaves room for one generation call.
	DefaultClientTimeout = generate.DefaultLLMTimeout + DefaultTimeout
)

// ErrNoContext is returned by GenerateTests when the server found nothing
// relevant in the knowledge base.
var ErrNoContext = errors.New("no relevant context found in knowledge base")

// StatusError is a non-2xx response from the API.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed (HTTP %d): %s", e.StatusCode, e.Message)
}

// Client calls the qagent API at Target.
type Client struct {
	target string
	http   *http.Client
}

// New creates a Client for the API at target, e.g. "http://localhost:8080".
// A nil httpClient uses one bounded by DefaultClientTimeout. Commands set
// tighter per-call deadlines on the context.
func New(target string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API target URL: %q", target)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultClientTimeout}
	}
	return &Client{target: u.String(), http: httpClient}, nil
}

// Ingest uploads the files at paths in one multipart request. A partial
// failure (HTTP 207) is returned as a response, not an error.
func (c *Client) Ingest(ctx context.Context, paths []string) (*api.IngestResponse, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		part, err := w.CreateFormFile("files", filepath.Base(p))
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(data); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var out api.IngestResponse
	if err := c.do(ctx, http.MethodPost, "/v1/ingest", nil, w.FormDataContentType(), &buf, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Search runs a similarity search. topK <= 0 uses the server default.
func (c *Client) Search(ctx context.Context, query string, topK int) (*apisearch.Output, error) {
	q := url.Values{}
	q.Set("query", query)
	if topK > 0 {
		q.Set("top_k", strconv.Itoa(topK))
	}

	var out apisearch.Output
	if err := c.do(ctx, http.MethodGet, "/v1/search", q, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateTests asks the server for test cases grounded on query.
func (c *Client) GenerateTests(ctx context.Context, query string, topK int) (*api.TestCasesResponse, error) {
	body, err := json.Marshal(api.QueryRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, err
	}

	var out api.TestCasesResponse
	err = c.do(ctx, http.MethodPost, "/v1/generate/tests", nil, "application/json", bytes.NewReader(body), &out)
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return nil, ErrNoContext
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateSelenium asks the server for a Selenium script for tc against html.
func (c *Client) GenerateSelenium(ctx context.Context, tc generate.TestCase, html string) (string, error) {
	body, err := json.Marshal(api.SeleniumRequest{TestCase: tc, HTMLContent: html})
	if err != nil {
		return "", err
	}

	var out api.SeleniumResponse
	if err := c.do(ctx, http.MethodPost, "/v1/generate/selenium", nil, "application/json", bytes.NewReader(body), &out); err != nil {
		return "", err
	}
	return out.SeleniumScript, nil
}

// Clear empties the knowledge base.
func (c *Client) Clear(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/v1/clear", nil, "", nil, &api.MessageResponse{})
}

// Stats returns the number of stored chunks.
// Source returns the stored chunks of one ingested file. A source with no
// chunks is a *StatusError with status 404.
func (c *Client) Source(ctx context.Context, name string) (*api.SourceResponse, error) {
	var out api.SourceResponse
	if err := c.do(ctx, http.MethodGet, "/v1/sources/"+url.PathEscape(name), nil, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Stats(ctx context.Context) (int, error) {
	var out api.StatsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/stats", nil, "", nil, &out); err != nil {
		return 0, err
	}
	return out.Documents, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, contentType string, body io.Reader, out any) error {
	u, err := url.JoinPath(c.target, path)
	if err != nil {
		return fmt.Errorf("building request URL: %w", err)
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to qagent API at %s: %w", c.target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var e api.ErrorResponse
	if err := json.Unmarshal(data, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return string(bytes.TrimSpace(data))
}
