package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"

	. "github.com/onsi/gomega"

	"github.com/papercomputeco/qagent/pkg/generate"
	"github.com/papercomputeco/qagent/pkg/ingest"
	"github.com/papercomputeco/qagent/pkg/knowledge"
	"github.com/papercomputeco/qagent/pkg/logger"
	"github.com/papercomputeco/qagent/pkg/retrieval"
	testutils "github.com/papercomputeco/qagent/pkg/utils/test"
	"github.com/papercomputeco/qagent/pkg/vector/inmemory"
)

// testHarness wires a Server over an in-memory knowledge base with mock
// embedder and model.
type testHarness struct {
	server   *Server
	kb       *knowledge.Base
	embedder *testutils.MockEmbedder
	llm      *testutils.MockLLM
}

func newTestHarness(withGenerator bool) *testHarness {
	h := &testHarness{
		embedder: testutils.NewMockEmbedder(),
		llm:      testutils.NewMockLLM(),
	}

	var err error
	h.kb, err = knowledge.New(knowledge.Config{
		Driver:   inmemory.NewDriver(inmemory.Config{}, logger.Nop()),
		Embedder: h.embedder,
	})
	Expect(err).NotTo(HaveOccurred())

	pipeline, err := ingest.New(ingest.Config{Knowledge: h.kb})
	Expect(err).NotTo(HaveOccurred())

	retriever, err := retrieval.NewService(retrieval.Config{Searcher: h.kb})
	Expect(err).NotTo(HaveOccurred())

	cfg := Config{
		ListenAddr: ":0",
		Knowledge:  h.kb,
		Ingester:   pipeline,
		Retriever:  retriever,
	}
	if withGenerator {
		cfg.Generator, err = generate.NewService(generate.Config{
			Retriever: retriever,
			LLM:       h.llm.Call,
		})
		Expect(err).NotTo(HaveOccurred())
	}

	h.server, err = NewServer(cfg)
	Expect(err).NotTo(HaveOccurred())
	return h
}

func (h *testHarness) do(req *http.Request) (*http.Response, []byte) {
	resp, err := h.server.app.Test(req, -1)
	Expect(err).NotTo(HaveOccurred())
	body, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp, body
}

func jsonRequest(method, path string, body any) *http.Request {
	data, err := json.Marshal(body)
	Expect(err).NotTo(HaveOccurred())
	req, err := http.NewRequest(method, path, bytes.NewReader(data))
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(path string, files map[string]string) *http.Request {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := w.CreateFormFile("files", name)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write([]byte(content))
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(w.Close()).To(Succeed())

	req, err := http.NewRequest(http.MethodPost, path, &buf)
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}
