// Package git detects the project a command runs in, so each repository can
// keep its own knowledge base collection.
package git

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const detectTimeout = 5 * time.Second

// RepoName returns the base name of the git work tree containing dir. Outside
// a work tree, or without a git binary, it returns the base name of dir.
func RepoName(ctx context.Context, dir string) string {
	ctx, cancel := context.WithTimeout(ctx, detectTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "git", "-C", dir, "rev-parse", "--show-toplevel").Output()
	if err == nil {
		if top := strings.TrimSpace(string(out)); top != "" {
			return filepath.Base(top)
		}
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return filepath.Base(dir)
	}
	return filepath.Base(abs)
}

// CollectionName turns a project name into a collection name every vector
// store accepts: lowercase ASCII letters, digits, '-' and '_', prefixed with
// "qagent-". An empty or unusable name yields "qagent".
func CollectionName(project string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(project) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteByte('-')
		}
	}

	slug := strings.Trim(b.String(), "-_")
	if slug == "" {
		return "qagent"
	}
	return "qagent-" + slug
}
