package knowledge_test

import (
	"context"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/qagent/pkg/embeddings"
	"github.com/papercomputeco/qagent/pkg/knowledge"
	"github.com/papercomputeco/qagent/pkg/logger"
	testutils "github.com/papercomputeco/qagent/pkg/utils/test"
	"github.com/papercomputeco/qagent/pkg/vector/inmemory"
)

var _ = Describe("Base", func() {
	var (
		ctx      context.Context
		embedder *testutils.MockEmbedder
		kb       *knowledge.Base
	)

	BeforeEach(func() {
		ctx = context.Background()
		embedder = testutils.NewMockEmbedder()
		embedder.Embeddings["login"] = []float32{1, 0, 0}
		embedder.Embeddings["logout"] = []float32{0.9, 0.1, 0}
		embedder.Embeddings["billing"] = []float32{0, 1, 0}
		embedder.Embeddings["query: login"] = []float32{1, 0, 0}

		var err error
		kb, err = knowledge.New(knowledge.Config{
			Driver:   inmemory.NewDriver(inmemory.Config{}, logger.Nop()),
			Embedder: embedder,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(kb.Close()).To(Succeed())
	})

	Describe("New", func() {
		It("should require a driver and an embedder", func() {
			_, err := knowledge.New(knowledge.Config{Embedder: embedder})
			Expect(err).To(HaveOccurred())
			_, err = knowledge.New(knowledge.Config{Driver: inmemory.NewDriver(inmemory.Config{}, logger.Nop())})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Search", func() {
		It("should return nothing from an empty base without embedding", func() {
			matches, err := kb.Search(ctx, "query: login", 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(matches).To(BeEmpty())
			Expect(embedder.Calls).To(BeZero())
		})

		It("should return nothing for a non-positive k", func() {
			Expect(kb.Add(ctx, []knowledge.Chunk{{Text: "login", Source: "a.md"}})).To(Succeed())

			matches, err := kb.Search(ctx, "query: login", 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(matches).To(BeEmpty())
			Expect(embedder.Calls).To(BeZero())
		})

		It("should return the nearest chunks in descending score order", func() {
			Expect(kb.Add(ctx, []knowledge.Chunk{
				{Text: "billing", Source: "b.md", Sequence: 0},
				{Text: "logout", Source: "a.md", Sequence: 1},
				{Text: "login", Source: "a.md", Sequence: 0},
			})).To(Succeed())

			matches, err := kb.Search(ctx, "query: login", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(matches).To(HaveLen(2))
			Expect(matches[0].Text).To(Equal("login"))
			Expect(matches[0].Source).To(Equal("a.md"))
			Expect(matches[1].Text).To(Equal("logout"))
			Expect(matches[0].Score).To(BeNumerically(">=", matches[1].Score))
		})

		It("should return all N chunks for k >= N with ties in insertion order", func() {
			Expect(kb.Add(ctx, []knowledge.Chunk{
				{Text: "first", Source: "t.md", Sequence: 0},
				{Text: "second", Source: "t.md", Sequence: 1},
				{Text: "third", Source: "t.md", Sequence: 2},
			})).To(Succeed())

			matches, err := kb.Search(ctx, "anything", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(matches).To(HaveLen(3))
			Expect(matches[0].Text).To(Equal("first"))
			Expect(matches[1].Text).To(Equal("second"))
			Expect(matches[2].Text).To(Equal("third"))
		})

		It("should surface embedding failures", func() {
			Expect(kb.Add(ctx, []knowledge.Chunk{{Text: "login", Source: "a.md"}})).To(Succeed())
			embedder.FailOn = "broken query"

			_, err := kb.Search(ctx, "broken query", 3)
			Expect(err).To(MatchError(embeddings.ErrUnavailable))
		})

		It("should allow concurrent searches", func() {
			Expect(kb.Add(ctx, []knowledge.Chunk{{Text: "login", Source: "a.md"}})).To(Succeed())

			var wg sync.WaitGroup
			for range 10 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					matches, err := kb.Search(ctx, "query: login", 1)
					Expect(err).NotTo(HaveOccurred())
					Expect(matches).To(HaveLen(1))
				}()
			}
			wg.Wait()
		})
	})

	Describe("Add", func() {
		It("should be a no-op for no chunks", func() {
			Expect(kb.Add(ctx, nil)).To(Succeed())
			Expect(embedder.BatchCalls).To(BeZero())
		})

		It("should embed in one batch", func() {
			Expect(kb.Add(ctx, []knowledge.Chunk{
				{Text: "login", Source: "a.md", Sequence: 0},
				{Text: "logout", Source: "a.md", Sequence: 1},
			})).To(Succeed())
			Expect(embedder.BatchCalls).To(Equal(1))
		})

		It("should store nothing when any chunk fails to embed", func() {
			embedder.FailOn = "logout"
			err := kb.Add(ctx, []knowledge.Chunk{
				{Text: "login", Source: "a.md", Sequence: 0},
				{Text: "logout", Source: "a.md", Sequence: 1},
			})
			Expect(err).To(MatchError(embeddings.ErrUnavailable))

			n, err := kb.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})
	})

	Describe("Replace", func() {
		It("should overwrite a source and drop its stale tail", func() {
			Expect(kb.Replace(ctx, "a.md", []knowledge.Chunk{
				{Text: "one", Source: "a.md", Sequence: 0},
				{Text: "two", Source: "a.md", Sequence: 1},
				{Text: "three", Source: "a.md", Sequence: 2},
			})).To(Succeed())
			Expect(kb.Add(ctx, []knowledge.Chunk{{Text: "other", Source: "b.md"}})).To(Succeed())

			Expect(kb.Replace(ctx, "a.md", []knowledge.Chunk{
				{Text: "uno", Source: "a.md", Sequence: 0},
			})).To(Succeed())

			n, err := kb.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))

			matches, err := kb.Search(ctx, "x", 10)
			Expect(err).NotTo(HaveOccurred())
			texts := []string{}
			for _, m := range matches {
				texts = append(texts, m.Text)
			}
			Expect(texts).To(ConsistOf("uno", "other"))
		})

		It("should be idempotent", func() {
			chunks := []knowledge.Chunk{
				{Text: "one", Source: "a.md", Sequence: 0},
				{Text: "two", Source: "a.md", Sequence: 1},
			}
			Expect(kb.Replace(ctx, "a.md", chunks)).To(Succeed())
			Expect(kb.Replace(ctx, "a.md", chunks)).To(Succeed())

			n, err := kb.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))
		})

		It("should reject chunks of another source", func() {
			err := kb.Replace(ctx, "a.md", []knowledge.Chunk{{Text: "x", Source: "b.md"}})
			Expect(err).To(HaveOccurred())
		})

		It("should reject gaps in the sequence", func() {
			err := kb.Replace(ctx, "a.md", []knowledge.Chunk{
				{Text: "one", Source: "a.md", Sequence: 0},
				{Text: "three", Source: "a.md", Sequence: 2},
			})
			Expect(err).To(MatchError(ContainSubstring("has sequence 2")))
			Expect(embedder.BatchCalls).To(BeZero())
		})
	})

	Describe("Chunks", func() {
		It("should return a source's chunks in sequence order", func() {
			Expect(kb.Replace(ctx, "a.md", []knowledge.Chunk{
				{Text: "one", Source: "a.md", Sequence: 0},
				{Text: "two", Source: "a.md", Sequence: 1},
			})).To(Succeed())
			Expect(kb.Add(ctx, []knowledge.Chunk{{Text: "other", Source: "b.md"}})).To(Succeed())

			chunks, err := kb.Chunks(ctx, "a.md")
			Expect(err).NotTo(HaveOccurred())
			Expect(chunks).To(Equal([]knowledge.Chunk{
				{Text: "one", Source: "a.md", Sequence: 0},
				{Text: "two", Source: "a.md", Sequence: 1},
			}))
		})

		It("should read sources longer than one page", func() {
			chunks := make([]knowledge.Chunk, 150)
			for i := range chunks {
				chunks[i] = knowledge.Chunk{Text: fmt.Sprintf("chunk %d", i), Source: "long.md", Sequence: i}
			}
			Expect(kb.Replace(ctx, "long.md", chunks)).To(Succeed())

			got, err := kb.Chunks(ctx, "long.md")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(chunks))
		})

		It("should return nothing for an unknown source", func() {
			chunks, err := kb.Chunks(ctx, "missing.md")
			Expect(err).NotTo(HaveOccurred())
			Expect(chunks).To(BeEmpty())
		})
	})

	Describe("RemoveSource", func() {
		It("should delete only that source", func() {
			Expect(kb.Add(ctx, []knowledge.Chunk{
				{Text: "one", Source: "a.md"},
				{Text: "two", Source: "b.md"},
			})).To(Succeed())
			Expect(kb.RemoveSource(ctx, "a.md")).To(Succeed())

			n, err := kb.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
		})
	})

	Describe("Clear", func() {
		It("should leave the base empty", func() {
			Expect(kb.Add(ctx, []knowledge.Chunk{{Text: "login", Source: "a.md"}})).To(Succeed())
			Expect(kb.Clear(ctx)).To(Succeed())

			n, err := kb.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())

			matches, err := kb.Search(ctx, "query: login", 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(matches).To(BeEmpty())
		})
	})
})
