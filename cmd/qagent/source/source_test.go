package sourcecmder_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/qagent/api"
	sourcecmder "github.com/papercomputeco/qagent/cmd/qagent/source"
)

var _ = Describe("source command", func() {
	var (
		server      *httptest.Server
		out         *bytes.Buffer
		response    *api.SourceResponse
		requestPath string
	)

	BeforeEach(func() {
		out = &bytes.Buffer{}
		response = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestPath = r.URL.Path
			w.Header().Set("Content-Type", "application/json")
			if response == nil {
				w.WriteHeader(http.StatusNotFound)
				_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "No chunks stored."})
				return
			}
			_ = json.NewEncoder(w).Encode(response)
		}))
		DeferCleanup(server.Close)
	})

	execute := func(args ...string) error {
		cmd := sourcecmder.NewSourceCmd()
		cmd.Flags().String("config-dir", GinkgoT().TempDir(), "")
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append(args, "--api-target", server.URL))
		return cmd.Execute()
	}

	It("lists chunk previews in sequence order", func() {
		response = &api.SourceResponse{
			Source: "login page.md",
			Chunks: []api.SourceChunk{
				{Sequence: 0, Text: "Users sign in\nwith email."},
				{Sequence: 1, Text: strings.Repeat("x", 300)},
			},
		}

		Expect(execute("login page.md")).To(Succeed())
		Expect(requestPath).To(Equal("/v1/sources/login page.md"))
		Expect(out.String()).To(ContainSubstring("2 chunks"))
		Expect(out.String()).To(ContainSubstring("Users sign in with email."))
		Expect(out.String()).To(ContainSubstring("..."))
		Expect(out.String()).NotTo(ContainSubstring(strings.Repeat("x", 300)))
		Expect(strings.Index(out.String(), "[0]")).To(BeNumerically("<", strings.Index(out.String(), "[1]")))
	})

	It("prints chunks unabridged with --full", func() {
		response = &api.SourceResponse{
			Source: "a.txt",
			Chunks: []api.SourceChunk{{Sequence: 0, Text: "line one\nline two"}},
		}

		Expect(execute("a.txt", "--full")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("line one\nline two"))
	})

	It("reports a file that was never ingested", func() {
		err := execute("missing.txt")
		Expect(err).To(MatchError("missing.txt has not been ingested"))
	})

	It("requires a file argument", func() {
		Expect(execute()).To(HaveOccurred())
	})
})
