package searchcmder_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apisearch "github.com/papercomputeco/qagent/api/search"
	searchcmder "github.com/papercomputeco/qagent/cmd/qagent/search"
)

var _ = Describe("Preview", func() {
	It("flattens whitespace", func() {
		Expect(searchcmder.Preview("a\n\nb\tc", 80)).To(Equal("a b c"))
	})

	It("truncates long content by runes", func() {
		p := searchcmder.Preview(strings.Repeat("é", 20), 10)
		Expect(p).To(Equal(strings.Repeat("é", 7) + "..."))
	})
})

var _ = Describe("search command", func() {
	var (
		server *httptest.Server
		out    *bytes.Buffer
		output apisearch.Output
	)

	BeforeEach(func() {
		out = &bytes.Buffer{}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(output)
		}))
		DeferCleanup(server.Close)
	})

	execute := func(args ...string) error {
		cmd := searchcmder.NewSearchCmd()
		cmd.Flags().String("config-dir", GinkgoT().TempDir(), "")
		cmd.SetOut(out)
		cmd.SetArgs(append(args, "--api-target", server.URL))
		return cmd.Execute()
	}

	It("prints only sources with --quiet", func() {
		output = apisearch.Output{
			Query:   "login",
			Sources: []string{"auth.md", "faq.md"},
			Results: []apisearch.Result{{Source: "auth.md"}, {Source: "faq.md"}},
			Count:   2,
		}

		Expect(execute("login", "--quiet")).To(Succeed())
		Expect(out.String()).To(Equal("auth.md\nfaq.md\n"))
	})

	It("reports an empty result", func() {
		output = apisearch.Output{Query: "login", Sources: []string{}}

		Expect(execute("login")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("No results found."))
	})

	It("prints each result with its source", func() {
		output = apisearch.Output{
			Query:   "login",
			Sources: []string{"auth.md"},
			Results: []apisearch.Result{{Source: "auth.md", Sequence: 2, Score: 0.9, Content: "Sign in"}},
			Count:   1,
		}

		Expect(execute("login")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("auth.md [2]"))
		Expect(out.String()).To(ContainSubstring("Sign in"))
	})
})
