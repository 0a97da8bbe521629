package git_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/qagent/pkg/git"
)

var _ = Describe("RepoName", func() {
	It("falls back to the directory name outside a work tree", func() {
		dir := filepath.Join(GinkgoT().TempDir(), "checkout-docs")
		Expect(os.Mkdir(dir, 0o755)).To(Succeed())

		Expect(git.RepoName(context.Background(), dir)).To(Equal("checkout-docs"))
	})

	It("returns the work tree name from a subdirectory", func() {
		if _, err := exec.LookPath("git"); err != nil {
			Skip("git binary not available")
		}

		root := filepath.Join(GinkgoT().TempDir(), "shop")
		sub := filepath.Join(root, "docs")
		Expect(os.MkdirAll(sub, 0o755)).To(Succeed())
		Expect(exec.Command("git", "init", "-q", root).Run()).To(Succeed())

		Expect(git.RepoName(context.Background(), sub)).To(Equal("shop"))
	})
})

var _ = Describe("CollectionName", func() {
	DescribeTable("slugs project names",
		func(project, expected string) {
			Expect(git.CollectionName(project)).To(Equal(expected))
		},
		Entry("plain", "shop", "qagent-shop"),
		Entry("mixed case and dots", "My.Shop App", "qagent-my-shop-app"),
		Entry("symbols dropped", "shop@2!", "qagent-shop2"),
		Entry("empty", "", "qagent"),
		Entry("only symbols", "@@", "qagent"),
	)
})
