package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ollamaapi "github.com/ollama/ollama/api"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	providerOllama    = "ollama"
	providerOpenAI    = "openai"
	providerAnthropic = "anthropic"

	// DefaultLLMTimeout bounds a single generation call.
	DefaultLLMTimeout = 300 * time.Second
)

// LLMCallFunc is the signature for a single-prompt generative model call.
type LLMCallFunc func(ctx context.Context, prompt string) (string, error)

// LLMCallerConfig holds configuration for creating an LLM caller.
type LLMCallerConfig struct {
	Provider string // "ollama", "openai" or "anthropic"
	Model    string // e.g. "llama3.2", "gpt-4o-mini"
	APIKey   string // explicit API key, otherwise read from the environment
	BaseURL  string // override base URL

	// Timeout bounds each call. Defaults to DefaultLLMTimeout.
	Timeout time.Duration
}

// SupportedProviders lists the provider names NewLLMCaller accepts.
var SupportedProviders = []string{providerOllama, providerOpenAI, providerAnthropic}

// NewLLMCaller creates a LLMCallFunc based on the provided configuration.
// API keys resolve from the config first, then OPENAI_API_KEY or
// ANTHROPIC_API_KEY.
func NewLLMCaller(cfg LLMCallerConfig) (LLMCallFunc, error) {
	provider := strings.ToLower(cfg.Provider)
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultLLMTimeout
	}

	switch provider {
	case providerOllama, "":
		model := cfg.Model
		if model == "" {
			model = "llama3.2"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return newOllamaCaller(model, baseURL, timeout)

	case providerOpenAI:
		apiKey := resolveAPIKey(cfg.APIKey, "OPENAI_API_KEY")
		if apiKey == "" {
			return nil, errors.New("openai generation requires an API key (set OPENAI_API_KEY)")
		}
		model := cfg.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		return newOpenAICaller(apiKey, model, cfg.BaseURL, timeout), nil

	case providerAnthropic:
		apiKey := resolveAPIKey(cfg.APIKey, "ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, errors.New("anthropic generation requires an API key (set ANTHROPIC_API_KEY)")
		}
		model := cfg.Model
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.anthropic.com"
		}
		return newAnthropicCaller(apiKey, model, baseURL, timeout), nil

	default:
		return nil, fmt.Errorf("unsupported generation provider: %s", cfg.Provider)
	}
}

func resolveAPIKey(explicit, env string) string {
	if explicit != "" {
		return explicit
	}
	return os.Getenv(env)
}

// --- Ollama caller ---

func newOllamaCaller(model, baseURL string, timeout time.Duration) (LLMCallFunc, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid ollama URL %q: %w", baseURL, err)
	}
	client := ollamaapi.NewClient(u, &http.Client{Timeout: timeout})
	stream := false

	return func(ctx context.Context, prompt string) (string, error) {
		req := &ollamaapi.ChatRequest{
			Model: model,
			Messages: []ollamaapi.Message{
				{Role: "user", Content: prompt},
			},
			Stream: &stream,
		}

		var out strings.Builder
		err := client.Chat(ctx, req, func(resp ollamaapi.ChatResponse) error {
			out.WriteString(resp.Message.Content)
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("ollama chat: %w", err)
		}
		return out.String(), nil
	}, nil
}

// --- OpenAI caller ---

func newOpenAICaller(apiKey, model, baseURL string, timeout time.Duration) LLMCallFunc {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(2),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	return func(ctx context.Context, prompt string) (string, error) {
		resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: openai.ChatModel(model),
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
		})
		if err != nil {
			return "", fmt.Errorf("openai chat completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("openai returned no choices")
		}
		return resp.Choices[0].Message.Content, nil
	}
}

// --- Anthropic caller ---

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func newAnthropicCaller(apiKey, model, baseURL string, timeout time.Duration) LLMCallFunc {
	client := &http.Client{Timeout: timeout}
	target := strings.TrimRight(baseURL, "/") + "/v1/messages"

	return func(ctx context.Context, prompt string) (string, error) {
		reqBody := anthropicRequest{
			Model:     model,
			MaxTokens: 4096,
			Messages: []anthropicMessage{
				{Role: "user", Content: prompt},
			},
		}

		data, err := json.Marshal(reqBody)
		if err != nil {
			return "", fmt.Errorf("marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("anthropic request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, string(body))
		}

		var result anthropicResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return "", fmt.Errorf("unmarshal response: %w", err)
		}

		if result.Error != nil {
			return "", fmt.Errorf("anthropic error: %s", result.Error.Message)
		}

		var out strings.Builder
		for _, block := range result.Content {
			if block.Type == "text" {
				out.WriteString(block.Text)
			}
		}
		if out.Len() == 0 {
			return "", errors.New("anthropic returned no content")
		}

		return out.String(), nil
	}
}
