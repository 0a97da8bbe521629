package api

import (
	"encoding/json"
	"net/http"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apisearch "github.com/papercomputeco/qagent/api/search"
)

var _ = Describe("handleSearchEndpoint", func() {
	var h *testHarness

	BeforeEach(func() {
		h = newTestHarness(false)
	})

	get := func(path string) (*http.Response, []byte) {
		req, err := http.NewRequest(http.MethodGet, path, nil)
		Expect(err).NotTo(HaveOccurred())
		return h.do(req)
	}

	Context("when query parameter is missing", func() {
		It("returns 400", func() {
			resp, body := get("/v1/search")
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(string(body)).To(ContainSubstring("query parameter is required"))
		})
	})

	Context("when top_k is invalid", func() {
		It("returns 400 for non-integer top_k", func() {
			resp, body := get("/v1/search?query=test&top_k=abc")
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
			Expect(string(body)).To(ContainSubstring("top_k must be a positive integer"))
		})

		It("returns 400 for zero top_k", func() {
			resp, _ := get("/v1/search?query=test&top_k=0")
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})

		It("returns 400 for negative top_k", func() {
			resp, _ := get("/v1/search?query=test&top_k=-1")
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Context("when search succeeds with no results", func() {
		It("returns 200 with empty results", func() {
			resp, body := get("/v1/search?query=hello")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var output apisearch.Output
			Expect(json.Unmarshal(body, &output)).To(Succeed())
			Expect(output.Query).To(Equal("hello"))
			Expect(output.Count).To(Equal(0))
			Expect(output.Context).To(BeEmpty())
		})
	})

	Context("when search returns results", func() {
		BeforeEach(func() {
			resp, _ := h.do(multipartRequest("/v1/ingest", map[string]string{
				"a.txt": "alpha",
				"b.txt": "beta",
				"c.txt": "gamma",
			}))
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		})

		It("honours top_k", func() {
			resp, body := get("/v1/search?query=anything&top_k=2")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var output apisearch.Output
			Expect(json.Unmarshal(body, &output)).To(Succeed())
			Expect(output.Count).To(Equal(2))
		})

		It("defaults to three results", func() {
			resp, body := get("/v1/search?query=anything")
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var output apisearch.Output
			Expect(json.Unmarshal(body, &output)).To(Succeed())
			Expect(output.Count).To(Equal(3))
		})
	})
})

var _ = Describe("handleRetrieve", func() {
	var h *testHarness

	BeforeEach(func() {
		h = newTestHarness(false)
	})

	It("returns an empty context for an empty knowledge base", func() {
		resp, body := h.do(jsonRequest(http.MethodPost, "/v1/retrieve", QueryRequest{Query: "login"}))
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

		var output apisearch.Output
		Expect(json.Unmarshal(body, &output)).To(Succeed())
		Expect(output.Context).To(Equal(""))
		Expect(output.Results).To(BeEmpty())
	})

	It("returns the labelled context", func() {
		resp, _ := h.do(multipartRequest("/v1/ingest", map[string]string{"auth.md": "Sign in with email."}))
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

		resp, body := h.do(jsonRequest(http.MethodPost, "/v1/retrieve", QueryRequest{Query: "login", TopK: 1}))
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

		var output apisearch.Output
		Expect(json.Unmarshal(body, &output)).To(Succeed())
		Expect(output.Context).To(Equal("Source: auth.md\nContent: Sign in with email.\n\n"))
	})

	It("rejects a top_k above the limit", func() {
		resp, _ := h.do(jsonRequest(http.MethodPost, "/v1/retrieve", QueryRequest{Query: "login", TopK: 1000}))
		Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
	})

	It("rejects a malformed body", func() {
		req := jsonRequest(http.MethodPost, "/v1/retrieve", nil)
		req.Body = http.NoBody
		req.ContentLength = 0
		resp, _ := h.do(req)
		Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
	})
})
