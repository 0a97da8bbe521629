// Package initcmder provides the init command for initializing a local .qagent
// directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/qagent/pkg/config"
	"github.com/papercomputeco/qagent/pkg/git"
)

const (
	dirName = ".qagent"
)

type initCommander struct {
	preset string
	force  bool
}

const initLongDesc string = `Initialize a new .qagent/ directory in the current working directory.

Creates a local .qagent/ directory that takes precedence over the default
~/.qagent/ directory for configuration, the sqlite knowledge base and the
server log. This keeps a separate knowledge base per project.

With --preset, a config.toml is written with provider defaults and a
vector store collection named after the git repository:
  ollama      local Ollama for embeddings and generation (default)
  openai      OpenAI embeddings and generation (OPENAI_API_KEY)
  anthropic   Anthropic generation with local Ollama embeddings (ANTHROPIC_API_KEY)
  offline     in-memory store with hashing embeddings, no network

Examples:
  qagent init
  qagent init --preset openai
  qagent init --preset offline --force`

const initShortDesc string = "Initialize a local .qagent/ directory"

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "", fmt.Sprintf("Write a config.toml for a provider preset (%s)", strings.Join(config.ValidPresetNames(), ", ")))
	cmd.Flags().BoolVar(&cmder.force, "force", false, "Overwrite an existing config.toml")

	return cmd
}

func (c *initCommander) run(ctx context.Context, w io.Writer) error {
	var cfg *config.Config
	if c.preset != "" {
		var err error
		if cfg, err = config.PresetConfig(c.preset); err != nil {
			return err
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		fmt.Fprintf(w, "Already initialized: %s\n", dir)
	case err == nil:
		return fmt.Errorf("%s exists and is not a directory", dir)
	default:
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .qagent directory: %w", err)
		}
		fmt.Fprintf(w, "Initialized .qagent directory: %s\n", dir)
	}

	if cfg == nil {
		return nil
	}
	cfg.VectorStore.Collection = git.CollectionName(git.RepoName(ctx, cwd))

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if _, err := os.Stat(cfger.GetTarget()); err == nil && !c.force {
		return errors.New("config.toml already exists; use --force to overwrite it")
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote %s preset to %s\n", c.preset, cfger.GetTarget())
	return nil
}
