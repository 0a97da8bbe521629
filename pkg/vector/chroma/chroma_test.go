package chroma_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/qagent/pkg/logger"
	"github.com/papercomputeco/qagent/pkg/vector"
	"github.com/papercomputeco/qagent/pkg/vector/chroma"
)

// fakeChroma records request bodies by path suffix and answers with canned
// responses.
type fakeChroma struct {
	mu       sync.Mutex
	requests map[string]map[string]any
	query    any
	count    int
}

func (f *fakeChroma) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer GinkgoRecover()

		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		op := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

		f.mu.Lock()
		f.requests[r.Method+" "+op] = body
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case op == "query":
			json.NewEncoder(w).Encode(f.query)
		case op == "count":
			json.NewEncoder(w).Encode(f.count)
		case op == "upsert" || op == "delete":
			w.Write([]byte("{}"))
		default:
			json.NewEncoder(w).Encode(map[string]string{"id": "col-1", "name": "qagent"})
		}
	})
}

func (f *fakeChroma) request(key string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[key]
}

var _ = Describe("Driver", func() {
	var log *slog.Logger

	BeforeEach(func() {
		log = logger.Nop()
	})

	Describe("NewDriver", func() {
		It("should return an error when URL is empty", func() {
			_, err := chroma.NewDriver(chroma.Config{URL: ""}, log)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("chroma URL is required"))
		})

		It("should succeed after retrying when Chroma becomes available", func() {
			var attempts atomic.Int32

			// Each retry cycle issues a GET for the collection followed by a
			// POST to create it. Fail the first two cycles.
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempt := attempts.Add(1)
				if attempt <= 4 {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}

				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{
					"id":   "test-collection-id",
					"name": "qagent",
				})
			}))
			defer server.Close()

			driver, err := chroma.NewDriver(chroma.Config{
				URL:           server.URL,
				MaxRetries:    5,
				RetryDelay:    10 * time.Millisecond,
				MaxRetryDelay: 50 * time.Millisecond,
			}, log)
			Expect(err).NotTo(HaveOccurred())
			Expect(driver).NotTo(BeNil())
			Expect(attempts.Load()).To(BeNumerically(">=", int32(5)))
		})

		It("should return a connection error after exhausting all retries", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			}))
			defer server.Close()

			_, err := chroma.NewDriver(chroma.Config{
				URL:           server.URL,
				MaxRetries:    3,
				RetryDelay:    10 * time.Millisecond,
				MaxRetryDelay: 50 * time.Millisecond,
			}, log)
			Expect(err).To(MatchError(vector.ErrConnection))
			Expect(err.Error()).To(ContainSubstring("after 3 attempts"))
		})
	})

	Describe("embedder identity", func() {
		It("records the identity and dimension when creating the collection", func() {
			var created map[string]any
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodGet {
					http.Error(w, "not found", http.StatusNotFound)
					return
				}
				_ = json.NewDecoder(r.Body).Decode(&created)
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{"id": "col-1", "name": "qagent"})
			}))
			defer server.Close()

			_, err := chroma.NewDriver(chroma.Config{
				URL:        server.URL,
				Dimensions: 8,
				Model:      "hashing/8",
			}, log)
			Expect(err).NotTo(HaveOccurred())

			meta := created["metadata"].(map[string]any)
			Expect(meta).To(HaveKeyWithValue("qagent:model", "hashing/8"))
			Expect(meta).To(HaveKeyWithValue("qagent:dimensions", BeEquivalentTo(8)))
			Expect(meta).To(HaveKeyWithValue("hnsw:space", "cosine"))
		})

		It("refuses a collection built by another embedder without retrying", func() {
			var attempts atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts.Add(1)
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]any{
					"id":   "col-1",
					"name": "qagent",
					"metadata": map[string]any{
						"qagent:model":      "hashing/768",
						"qagent:dimensions": 768,
					},
				})
			}))
			defer server.Close()

			_, err := chroma.NewDriver(chroma.Config{
				URL:        server.URL,
				Dimensions: 768,
				Model:      "ollama/nomic-embed-text",
				RetryDelay: 10 * time.Millisecond,
			}, log)
			Expect(err).To(MatchError(vector.ErrModelMismatch))
			Expect(err.Error()).To(ContainSubstring("hashing/768"))
			Expect(attempts.Load()).To(Equal(int32(1)))
		})

		It("refuses a collection recorded with another dimension", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]any{
					"id":       "col-1",
					"metadata": map[string]any{"qagent:dimensions": 384},
				})
			}))
			defer server.Close()

			_, err := chroma.NewDriver(chroma.Config{URL: server.URL, Dimensions: 768}, log)
			Expect(err).To(MatchError(vector.ErrModelMismatch))
		})

		It("accepts a matching collection", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]any{
					"id":       "col-1",
					"metadata": map[string]any{"qagent:model": "ollama/nomic-embed-text", "qagent:dimensions": 768},
				})
			}))
			defer server.Close()

			_, err := chroma.NewDriver(chroma.Config{
				URL:        server.URL,
				Dimensions: 768,
				Model:      "ollama/nomic-embed-text",
			}, log)
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Interface compliance", func() {
		It("should implement vector.Driver interface", func() {
			var _ vector.Driver = (*chroma.Driver)(nil)
		})
	})

	Describe("operations", func() {
		var (
			fake   *fakeChroma
			server *httptest.Server
			driver *chroma.Driver
			ctx    context.Context
		)

		BeforeEach(func() {
			ctx = context.Background()
			fake = &fakeChroma{requests: map[string]map[string]any{}}
			server = httptest.NewServer(fake.handler())

			var err error
			driver, err = chroma.NewDriver(chroma.Config{URL: server.URL, Dimensions: 2}, log)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			server.Close()
		})

		It("should upsert text and provenance metadata", func() {
			Expect(driver.Add(ctx, []vector.Document{{
				ID: vector.DocumentID("a.md", 0), Source: "a.md", Sequence: 0,
				Text: "hello", Embedding: []float32{1, 0},
			}})).To(Succeed())

			body := fake.request("POST upsert")
			Expect(body["documents"]).To(Equal([]any{"hello"}))
			meta := body["metadatas"].([]any)[0].(map[string]any)
			Expect(meta["source"]).To(Equal("a.md"))
			Expect(meta["sequence"]).To(BeEquivalentTo(0))
		})

		It("should reject embeddings of the wrong dimension before sending", func() {
			err := driver.Add(ctx, []vector.Document{{ID: "x", Embedding: []float32{1, 0, 0}}})
			Expect(err).To(MatchError(vector.ErrDimensionMismatch))
			Expect(fake.request("POST upsert")).To(BeNil())
		})

		It("should convert distances to scores and order ties by ordinal", func() {
			fake.query = map[string]any{
				"ids":       [][]string{{"b", "a", "c"}},
				"distances": [][]float32{{0.5, 0.5, 0}},
				"documents": [][]string{{"B", "A", "C"}},
				"metadatas": [][]map[string]any{{
					{"source": "b.md", "sequence": 1, "ordinal": 20},
					{"source": "a.md", "sequence": 0, "ordinal": 10},
					{"source": "c.md", "sequence": 2, "ordinal": 30},
				}},
			}

			results, err := driver.Query(ctx, []float32{1, 0}, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))
			Expect(results[0].Text).To(Equal("C"))
			Expect(results[0].Score).To(BeNumerically("~", 1.0, 1e-6))
			Expect(results[1].Text).To(Equal("A"))
			Expect(results[1].Source).To(Equal("a.md"))
			Expect(results[2].Text).To(Equal("B"))
			Expect(results[2].Sequence).To(Equal(1))
		})

		It("should send a source and sequence filter on trim", func() {
			Expect(driver.TrimSource(ctx, "a.md", 3)).To(Succeed())

			where := fake.request("POST delete")["where"].(map[string]any)
			clauses := where["$and"].([]any)
			Expect(clauses).To(HaveLen(2))
		})

		It("should report the count", func() {
			fake.count = 7
			n, err := driver.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(7))
		})
	})
})
