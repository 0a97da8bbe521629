package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/qagent/pkg/embeddings"
	"github.com/papercomputeco/qagent/pkg/embeddings/openai"
)

var _ = Describe("Embedder", func() {
	var (
		server   *httptest.Server
		embedder *openai.Embedder
		lastBody map[string]any
		status   int
	)

	BeforeEach(func() {
		status = http.StatusOK
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/v1/embeddings"))
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer test-key"))
			Expect(json.NewDecoder(r.Body).Decode(&lastBody)).To(Succeed())

			w.Header().Set("Content-Type", "application/json")
			if status != http.StatusOK {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"error":{"message":"bad input","type":"invalid_request_error"}}`))
				return
			}

			// Out of order on purpose: results are matched by index.
			_, _ = w.Write([]byte(`{
				"object": "list",
				"model": "text-embedding-3-small",
				"data": [
					{"object": "embedding", "index": 1, "embedding": [0.3, 0.4]},
					{"object": "embedding", "index": 0, "embedding": [0.1, 0.2]}
				],
				"usage": {"prompt_tokens": 2, "total_tokens": 2}
			}`))
		}))
		DeferCleanup(server.Close)

		var err error
		embedder, err = openai.NewEmbedder(openai.EmbedderConfig{
			BaseURL: server.URL + "/v1/",
			APIKey:  "test-key",
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires an API key", func() {
		GinkgoT().Setenv(openai.APIKeyEnv, "")
		_, err := openai.NewEmbedder(openai.EmbedderConfig{})
		Expect(err).To(MatchError(ContainSubstring(openai.APIKeyEnv)))
	})

	It("identifies itself by provider and model", func() {
		Expect(embedder.Identity()).To(Equal("openai/" + openai.DefaultEmbeddingModel))
	})

	It("embeds a batch in one request, ordered by index", func() {
		out, err := embedder.EmbedBatch(context.Background(), []string{"a", "b"})
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(2))
		Expect(out[0]).To(HaveLen(2))
		Expect(out[0][0]).To(BeNumerically("~", 0.1, 1e-6))
		Expect(out[1][1]).To(BeNumerically("~", 0.4, 1e-6))

		Expect(lastBody["model"]).To(Equal(openai.DefaultEmbeddingModel))
		Expect(lastBody["input"]).To(Equal([]any{"a", "b"}))
	})

	It("returns nothing for an empty batch without calling the API", func() {
		lastBody = nil
		out, err := embedder.EmbedBatch(context.Background(), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(BeEmpty())
		Expect(lastBody).To(BeNil())
	})

	It("wraps API failures as ErrUnavailable", func() {
		status = http.StatusBadRequest
		_, err := embedder.EmbedBatch(context.Background(), []string{"a", "b"})
		Expect(errors.Is(err, embeddings.ErrUnavailable)).To(BeTrue())
	})

	It("rejects a response with the wrong number of vectors", func() {
		_, err := embedder.Embed(context.Background(), "only one")
		Expect(err).To(MatchError(ContainSubstring("expected 1 embeddings, got 2")))
	})
})
