package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/qagent/pkg/logger"
)

// recordingIngester captures every ingest call. When block is non-nil each
// call waits on it.
type recordingIngester struct {
	mu    sync.Mutex
	calls map[string][]byte
	fail  string
	block chan struct{}
}

func newRecordingIngester() *recordingIngester {
	return &recordingIngester{calls: map[string][]byte{}}
}

func (r *recordingIngester) Ingest(_ context.Context, filename string, raw []byte) (int, error) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[filename] = raw
	if filename == r.fail {
		return 0, errors.New("ingest failed")
	}
	return 1, nil
}

func (r *recordingIngester) called() map[string][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]byte, len(r.calls))
	for k, v := range r.calls {
		out[k] = v
	}
	return out
}

var _ = Describe("Worker Pool", func() {
	var ingester *recordingIngester

	BeforeEach(func() {
		ingester = newRecordingIngester()
	})

	It("requires an ingester", func() {
		_, err := NewPool(&Config{})
		Expect(err).To(HaveOccurred())
	})

	It("applies defaults", func() {
		wp, err := NewPool(&Config{Ingester: ingester, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		Expect(wp.config.NumWorkers).To(Equal(defaultNumWorkers))
		Expect(cap(wp.queue)).To(Equal(int(defaultJobQueueSize)))
		wp.Close()
	})

	It("drains queued jobs on close", func() {
		wp, err := NewPool(&Config{Ingester: ingester, NumWorkers: 3})
		Expect(err).NotTo(HaveOccurred())

		for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt"} {
			Expect(wp.Enqueue(Job{Name: name, Data: []byte(name)})).To(BeTrue())
		}
		wp.Close()

		Expect(ingester.called()).To(HaveLen(4))
	})

	It("reads the file from disk when no data is given", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "guide.md")
		Expect(os.WriteFile(path, []byte("# Guide"), 0o600)).To(Succeed())

		wp, err := NewPool(&Config{Ingester: ingester})
		Expect(err).NotTo(HaveOccurred())
		Expect(wp.Enqueue(Job{Path: path, Name: "guide.md"})).To(BeTrue())
		wp.Close()

		Expect(ingester.called()).To(HaveKeyWithValue("guide.md", []byte("# Guide")))
	})

	It("reports results including failures", func() {
		var mu sync.Mutex
		var results []Result
		ingester.fail = "bad.txt"

		wp, err := NewPool(&Config{
			Ingester: ingester,
			OnResult: func(r Result) {
				mu.Lock()
				defer mu.Unlock()
				results = append(results, r)
			},
		})
		Expect(err).NotTo(HaveOccurred())

		wp.Enqueue(Job{Name: "good.txt", Data: []byte("x")})
		wp.Enqueue(Job{Name: "bad.txt", Data: []byte("y")})
		wp.Enqueue(Job{Path: "/does/not/exist.txt"})
		wp.Close()

		mu.Lock()
		defer mu.Unlock()
		Expect(results).To(HaveLen(3))

		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
		Expect(failed).To(Equal(2))
	})

	It("drops jobs when the queue is full", func() {
		ingester.block = make(chan struct{})
		wp, err := NewPool(&Config{Ingester: ingester, NumWorkers: 1, QueueSize: 1})
		Expect(err).NotTo(HaveOccurred())

		// the first job may be picked up by the worker immediately, so keep
		// enqueuing until the buffer rejects one
		dropped := false
		for i := 0; i < 10 && !dropped; i++ {
			dropped = !wp.Enqueue(Job{Name: "f", Data: []byte("x")})
		}
		Expect(dropped).To(BeTrue())

		close(ingester.block)
		wp.Close()
	})

	It("tolerates repeated close", func() {
		wp, err := NewPool(&Config{Ingester: ingester})
		Expect(err).NotTo(HaveOccurred())
		wp.Close()
		Expect(wp.Close).NotTo(Panic())
	})
	It("drops jobs enqueued after close", func() {
		wp, err := NewPool(&Config{Ingester: ingester})
		Expect(err).NotTo(HaveOccurred())
		wp.Close()

		var ok bool
		Expect(func() { ok = wp.Enqueue(Job{Name: "late.md", Data: []byte("x")}) }).NotTo(Panic())
		Expect(ok).To(BeFalse())
		Expect(ingester.called()).NotTo(HaveKey("late.md"))
	})

	It("survives producers racing close", func() {
		wp, err := NewPool(&Config{Ingester: ingester, QueueSize: 4})
		Expect(err).NotTo(HaveOccurred())

		var wg sync.WaitGroup
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				for range 50 {
					wp.Enqueue(Job{Name: filepath.Join("doc", string(rune('a'+i))), Data: []byte("x")})
				}
			}()
		}
		wp.Close()
		wg.Wait()
	})
})
