package generate_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/qagent/pkg/generate"
)

var _ = Describe("NewLLMCaller", func() {
	It("defaults to ollama", func() {
		caller, err := generate.NewLLMCaller(generate.LLMCallerConfig{})
		Expect(err).NotTo(HaveOccurred())
		Expect(caller).NotTo(BeNil())
	})

	It("returns an error for an unsupported provider", func() {
		_, err := generate.NewLLMCaller(generate.LLMCallerConfig{Provider: "gemini"})
		Expect(err).To(MatchError(ContainSubstring("unsupported generation provider")))
	})

	It("requires a key for openai", func() {
		GinkgoT().Setenv("OPENAI_API_KEY", "")
		_, err := generate.NewLLMCaller(generate.LLMCallerConfig{Provider: "openai"})
		Expect(err).To(MatchError(ContainSubstring("OPENAI_API_KEY")))
	})

	It("requires a key for anthropic", func() {
		GinkgoT().Setenv("ANTHROPIC_API_KEY", "")
		_, err := generate.NewLLMCaller(generate.LLMCallerConfig{Provider: "anthropic"})
		Expect(err).To(MatchError(ContainSubstring("ANTHROPIC_API_KEY")))
	})
})

var _ = Describe("Ollama caller", func() {
	It("sends a non-streaming chat request", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/api/chat"))

			var req map[string]any
			Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
			Expect(req["model"]).To(Equal("llama3.2"))
			Expect(req["stream"]).To(BeFalse())

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"model":"llama3.2","message":{"role":"assistant","content":"[]"},"done":true}` + "\n"))
		}))
		defer server.Close()

		caller, err := generate.NewLLMCaller(generate.LLMCallerConfig{
			Provider: "ollama",
			Model:    "llama3.2",
			BaseURL:  server.URL,
		})
		Expect(err).NotTo(HaveOccurred())

		out, err := caller(context.Background(), "prompt")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("[]"))
	})

	It("returns an error on a failed request", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"model not found"}`))
		}))
		defer server.Close()

		caller, err := generate.NewLLMCaller(generate.LLMCallerConfig{BaseURL: server.URL})
		Expect(err).NotTo(HaveOccurred())

		_, err = caller(context.Background(), "prompt")
		Expect(err).To(MatchError(ContainSubstring("ollama chat")))
	})
})

var _ = Describe("OpenAI caller", func() {
	It("calls chat completions and returns the message content", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/v1/chat/completions"))
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer test-key"))

			var req map[string]any
			Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
			Expect(req["model"]).To(Equal("gpt-4o-mini"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"id": "chatcmpl-1",
				"object": "chat.completion",
				"created": 1,
				"model": "gpt-4o-mini",
				"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "print('ok')"}}]
			}`))
		}))
		defer server.Close()

		caller, err := generate.NewLLMCaller(generate.LLMCallerConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			APIKey:   "test-key",
			BaseURL:  server.URL + "/v1/",
		})
		Expect(err).NotTo(HaveOccurred())

		out, err := caller(context.Background(), "prompt")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal("print('ok')"))
	})
})

var _ = Describe("Anthropic caller", func() {
	It("calls the messages API and joins text blocks", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/v1/messages"))
			Expect(r.Header.Get("x-api-key")).To(Equal("test-key"))
			Expect(r.Header.Get("anthropic-version")).To(Equal("2023-06-01"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"[{\"Test_ID\":"},{"type":"text","text":"\"TC1\"}]"}]}`))
		}))
		defer server.Close()

		caller, err := generate.NewLLMCaller(generate.LLMCallerConfig{
			Provider: "anthropic",
			APIKey:   "test-key",
			BaseURL:  server.URL,
		})
		Expect(err).NotTo(HaveOccurred())

		out, err := caller(context.Background(), "prompt")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(Equal(`[{"Test_ID":"TC1"}]`))
	})

	It("returns an error on non-200 status", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid key"}}`))
		}))
		defer server.Close()

		caller, err := generate.NewLLMCaller(generate.LLMCallerConfig{
			Provider: "anthropic",
			APIKey:   "bad-key",
			BaseURL:  server.URL,
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = caller(context.Background(), "prompt")
		Expect(err).To(MatchError(ContainSubstring("status 401")))
	})
})
