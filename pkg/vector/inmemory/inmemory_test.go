package inmemory_test

import (
	"context"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/qagent/pkg/logger"
	"github.com/papercomputeco/qagent/pkg/vector"
	"github.com/papercomputeco/qagent/pkg/vector/inmemory"
)

func doc(source string, seq int, emb ...float32) vector.Document {
	return vector.Document{
		ID:        vector.DocumentID(source, seq),
		Source:    source,
		Sequence:  seq,
		Text:      fmt.Sprintf("%s-%d", source, seq),
		Embedding: emb,
	}
}

var _ = Describe("Driver", func() {
	var (
		ctx    context.Context
		driver *inmemory.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver(inmemory.Config{}, logger.Nop())
	})

	It("should return nothing from an empty store", func() {
		results, err := driver.Query(ctx, []float32{1, 0}, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(BeEmpty())
	})

	It("should adopt the dimension of the first add and enforce it", func() {
		Expect(driver.Add(ctx, []vector.Document{doc("a", 0, 1, 0)})).To(Succeed())
		err := driver.Add(ctx, []vector.Document{doc("a", 1, 1, 0, 0)})
		Expect(err).To(MatchError(vector.ErrDimensionMismatch))

		_, err = driver.Query(ctx, []float32{1, 0, 0}, 1)
		Expect(err).To(MatchError(vector.ErrDimensionMismatch))
	})

	It("should order by score and break ties by insertion order", func() {
		Expect(driver.Add(ctx, []vector.Document{
			doc("a", 0, 0, 1),
			doc("b", 0, 1, 0),
			doc("c", 0, 0, 1),
			doc("d", 0, 0, 1),
		})).To(Succeed())

		results, err := driver.Query(ctx, []float32{0, 1}, 10)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(4))
		Expect(results[0].Source).To(Equal("a"))
		Expect(results[1].Source).To(Equal("c"))
		Expect(results[2].Source).To(Equal("d"))
		Expect(results[3].Source).To(Equal("b"))
		Expect(results[0].Score).To(BeNumerically("~", 1.0, 1e-6))
	})

	It("should upsert by ID and keep the original position", func() {
		Expect(driver.Add(ctx, []vector.Document{doc("a", 0, 1, 0), doc("b", 0, 1, 0)})).To(Succeed())
		updated := doc("a", 0, 1, 0)
		updated.Text = "rewritten"
		Expect(driver.Add(ctx, []vector.Document{updated})).To(Succeed())

		n, _ := driver.Count(ctx)
		Expect(n).To(Equal(2))

		results, err := driver.Query(ctx, []float32{1, 0}, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(results[0].Text).To(Equal("rewritten"))
	})

	It("should trim a source from a sequence onward", func() {
		Expect(driver.Add(ctx, []vector.Document{
			doc("a", 0, 1, 0), doc("a", 1, 1, 0), doc("a", 2, 1, 0), doc("b", 5, 1, 0),
		})).To(Succeed())
		Expect(driver.TrimSource(ctx, "a", 1)).To(Succeed())

		docs, err := driver.Get(ctx, []string{
			vector.DocumentID("a", 0), vector.DocumentID("a", 1), vector.DocumentID("b", 5),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(docs).To(HaveLen(2))
	})

	It("should clear everything", func() {
		Expect(driver.Add(ctx, []vector.Document{doc("a", 0, 1, 0)})).To(Succeed())
		Expect(driver.Clear(ctx)).To(Succeed())
		n, err := driver.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())
	})

	It("should tolerate concurrent readers and writers", func() {
		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(2)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				Expect(driver.Add(ctx, []vector.Document{doc("w", i, 1, 0)})).To(Succeed())
			}()
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				_, err := driver.Query(ctx, []float32{1, 0}, 3)
				Expect(err).NotTo(HaveOccurred())
			}()
		}
		wg.Wait()

		n, _ := driver.Count(ctx)
		Expect(n).To(Equal(8))
	})
})
