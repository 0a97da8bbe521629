package mcp_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/qagent/api/mcp"
	apisearch "github.com/papercomputeco/qagent/api/search"
	"github.com/papercomputeco/qagent/pkg/generate"
	"github.com/papercomputeco/qagent/pkg/knowledge"
	"github.com/papercomputeco/qagent/pkg/logger"
	"github.com/papercomputeco/qagent/pkg/retrieval"
	testutils "github.com/papercomputeco/qagent/pkg/utils/test"
	"github.com/papercomputeco/qagent/pkg/vector/inmemory"
)

func textOf(res *sdkmcp.CallToolResult) string {
	Expect(res.Content).NotTo(BeEmpty())
	text, ok := res.Content[0].(*sdkmcp.TextContent)
	Expect(ok).To(BeTrue())
	return text.Text
}

var _ = Describe("MCP Server", func() {
	var (
		ctx       context.Context
		kb        *knowledge.Base
		retriever *retrieval.Service
		generator *generate.Service
		llm       *testutils.MockLLM
	)

	BeforeEach(func() {
		ctx = context.Background()

		var err error
		kb, err = knowledge.New(knowledge.Config{
			Driver:   inmemory.NewDriver(inmemory.Config{}, logger.Nop()),
			Embedder: testutils.NewMockEmbedder(),
		})
		Expect(err).NotTo(HaveOccurred())

		retriever, err = retrieval.NewService(retrieval.Config{Searcher: kb})
		Expect(err).NotTo(HaveOccurred())

		llm = testutils.NewMockLLM(`[{"Test_ID":"TC001","Feature":"Login","Test_Scenario":"s","Expected_Result":"r","Grounded_In":"auth.md"}]`)
		generator, err = generate.NewService(generate.Config{Retriever: retriever, LLM: llm.Call})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("returns an error when retriever is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Counter: kb})
			Expect(err).To(MatchError(ContainSubstring("retriever is required")))
		})

		It("returns an error when counter is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Retriever: retriever})
			Expect(err).To(MatchError(ContainSubstring("counter is required")))
		})

		It("creates an empty server in noop mode", func() {
			server, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Handler()).NotTo(BeNil())
		})
	})

	Describe("tools", func() {
		var (
			httpServer *httptest.Server
			session    *sdkmcp.ClientSession
		)

		BeforeEach(func() {
			server, err := mcp.NewServer(mcp.Config{
				Retriever: retriever,
				Counter:   kb,
				Generator: generator,
			})
			Expect(err).NotTo(HaveOccurred())

			httpServer = httptest.NewServer(server.Handler())

			client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
			session, err = client.Connect(ctx, &sdkmcp.StreamableClientTransport{Endpoint: httpServer.URL}, nil)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			Expect(session.Close()).To(Succeed())
			httpServer.Close()
		})

		It("lists the knowledge base tools", func() {
			res, err := session.ListTools(ctx, &sdkmcp.ListToolsParams{})
			Expect(err).NotTo(HaveOccurred())

			names := make([]string, 0, len(res.Tools))
			for _, t := range res.Tools {
				names = append(names, t.Name)
			}
			Expect(names).To(ConsistOf("retrieve_context", "knowledge_stats", "generate_test_cases"))
		})

		It("reports the document count", func() {
			Expect(kb.Add(ctx, []knowledge.Chunk{{Text: "a", Source: "a.md"}})).To(Succeed())

			res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
				Name:      "knowledge_stats",
				Arguments: map[string]any{},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(textOf(res)).To(MatchJSON(`{"documents": 1}`))
		})

		It("retrieves labelled context", func() {
			Expect(kb.Add(ctx, []knowledge.Chunk{{Text: "Login needs email.", Source: "auth.md"}})).To(Succeed())

			res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
				Name:      "retrieve_context",
				Arguments: map[string]any{"query": "login"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())

			var output apisearch.Output
			Expect(json.Unmarshal([]byte(textOf(res)), &output)).To(Succeed())
			Expect(output.Context).To(Equal("Source: auth.md\nContent: Login needs email.\n\n"))
			Expect(output.Count).To(Equal(1))
		})

		It("reports a missing context as a tool error", func() {
			res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
				Name:      "generate_test_cases",
				Arguments: map[string]any{"query": "login"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
			Expect(textOf(res)).To(ContainSubstring("No relevant context"))
			Expect(llm.CallCount()).To(Equal(0))
		})

		It("generates grounded test cases", func() {
			Expect(kb.Add(ctx, []knowledge.Chunk{{Text: "Login needs email.", Source: "auth.md"}})).To(Succeed())

			res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
				Name:      "generate_test_cases",
				Arguments: map[string]any{"query": "login"},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())

			var output mcp.GenerateOutput
			Expect(json.Unmarshal([]byte(textOf(res)), &output)).To(Succeed())
			Expect(output.TestCases).To(HaveLen(1))
			Expect(output.TestCases[0].GroundedIn).To(Equal("auth.md"))
			Expect(output.Sources).To(Equal([]string{"auth.md"}))
		})
	})
})
