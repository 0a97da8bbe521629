// Package servecmder provides the serve command that runs the qagent API
// server and, optionally, a background directory ingester.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/qagent/api"
	"github.com/papercomputeco/qagent/pkg/cliui"
	"github.com/papercomputeco/qagent/pkg/config"
	"github.com/papercomputeco/qagent/pkg/dotdir"
	"github.com/papercomputeco/qagent/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/qagent/pkg/embeddings/utils"
	"github.com/papercomputeco/qagent/pkg/eventstream"
	eventstreamutils "github.com/papercomputeco/qagent/pkg/eventstream/utils"
	"github.com/papercomputeco/qagent/pkg/generate"
	"github.com/papercomputeco/qagent/pkg/ingest"
	"github.com/papercomputeco/qagent/pkg/ingest/watch"
	"github.com/papercomputeco/qagent/pkg/ingest/worker"
	"github.com/papercomputeco/qagent/pkg/knowledge"
	"github.com/papercomputeco/qagent/pkg/logger"
	"github.com/papercomputeco/qagent/pkg/retrieval"
	vectorutils "github.com/papercomputeco/qagent/pkg/vector/utils"
)

const (
	knowledgeFileName = "knowledge.db"
	logFileName       = "server.log"
)

// serveFlags are the registry keys bound to viper for this command.
var serveFlags = []string{
	config.FlagListen,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagVectorStorePath,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagGenerationProv,
	config.FlagGenerationTgt,
	config.FlagGenerationModel,
	config.FlagTopK,
	config.FlagWatchDir,
	config.FlagIngestWorkers,
}

type serveCommander struct {
	listen string

	vectorStoreProvider   string
	vectorStoreTarget     string
	vectorStorePath       string
	vectorStoreCollection string

	embeddingProvider   string
	embeddingTarget     string
	embeddingModel      string
	embeddingDimensions uint

	generationProvider string
	generationTarget   string
	generationModel    string
	noGeneration       bool

	topK    uint
	watch   string
	workers uint

	eventStreamProvider string
	eventStreamBrokers  []string
	eventStreamTopic    string

	configDir string
	debug     bool
	logger    *slog.Logger
}

const serveLongDesc string = `Run the qagent API server.

The server owns the knowledge base and exposes ingestion, retrieval and
generation over HTTP under /v1, and the same retrieval and generation as MCP
tools under /mcp.

With --watch, every file in the directory is ingested on start and again
whenever it changes. Deleting a file removes its chunks.

Settings resolve from flags, then QAGENT_* environment variables, then
config.toml, then defaults. Provider API keys are read from OPENAI_API_KEY and
ANTHROPIC_API_KEY, and a .env file in the working directory is loaded first.

Examples:
  qagent serve
  qagent serve --watch ./docs
  qagent serve --vector-store-provider qdrant --vector-store-target localhost:6334
  qagent serve --embedding-provider hashing --vector-store-provider memory --no-generation`

const serveShortDesc string = "Run the qagent API server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)
			cmder.apply(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreProv, &cmder.vectorStoreProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreTgt, &cmder.vectorStoreTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStorePath, &cmder.vectorStorePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingProv, &cmder.embeddingProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingTgt, &cmder.embeddingTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingModel, &cmder.embeddingModel)
	config.AddUintFlag(cmd, config.Flags, config.FlagEmbeddingDims, &cmder.embeddingDimensions)
	config.AddStringFlag(cmd, config.Flags, config.FlagGenerationProv, &cmder.generationProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagGenerationTgt, &cmder.generationTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagGenerationModel, &cmder.generationModel)
	config.AddUintFlag(cmd, config.Flags, config.FlagTopK, &cmder.topK)
	config.AddStringFlag(cmd, config.Flags, config.FlagWatchDir, &cmder.watch)
	config.AddUintFlag(cmd, config.Flags, config.FlagIngestWorkers, &cmder.workers)
	cmd.Flags().BoolVar(&cmder.noGeneration, "no-generation", false, "Disable test case and script generation")

	return cmd
}

// apply copies the resolved settings out of v. Flags bound to v win over
// the environment, which wins over config.toml.
func (c *serveCommander) apply(v *viper.Viper) {
	c.listen = v.GetString("api.listen")
	c.vectorStoreProvider = v.GetString("vector_store.provider")
	c.vectorStoreTarget = v.GetString("vector_store.target")
	c.vectorStorePath = v.GetString("vector_store.path")
	c.vectorStoreCollection = v.GetString("vector_store.collection")
	c.embeddingProvider = v.GetString("embedding.provider")
	c.embeddingTarget = v.GetString("embedding.target")
	c.embeddingModel = v.GetString("embedding.model")
	c.embeddingDimensions = v.GetUint("embedding.dimensions")
	c.generationProvider = v.GetString("generation.provider")
	c.generationTarget = v.GetString("generation.target")
	c.generationModel = v.GetString("generation.model")
	c.topK = v.GetUint("retrieval.top_k")
	c.watch = v.GetString("ingest.watch_dir")
	c.workers = v.GetUint("ingest.workers")
	c.eventStreamProvider = v.GetString("eventstream.provider")
	c.eventStreamBrokers = v.GetStringSlice("eventstream.brokers")
	c.eventStreamTopic = v.GetString("eventstream.topic")
}

func (c *serveCommander) run(ctx context.Context) error {
	logFile, err := c.openLogFile()
	if err != nil {
		return err
	}
	defer logFile.Close()

	c.logger = logger.Multi(
		logger.New(
			logger.WithDebug(c.debug),
			logger.WithPretty(cliui.IsTerminal(os.Stderr)),
			logger.WithWriter(os.Stderr),
		),
		logger.New(
			logger.WithDebug(c.debug),
			logger.WithJSON(true),
			logger.WithWriter(logFile),
		),
	)

	kb, err := c.newKnowledgeBase(ctx)
	if err != nil {
		return err
	}
	defer kb.Close()

	publisher, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
		ProviderType: c.eventStreamProvider,
		Brokers:      c.eventStreamBrokers,
		Topic:        c.eventStreamTopic,
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating event publisher: %w", err)
	}
	defer publisher.Close()

	pipeline, err := ingest.New(ingest.Config{
		Knowledge: kb,
		Publisher: publisher,
		Logger:    c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating ingest pipeline: %w", err)
	}

	retriever, err := retrieval.NewService(retrieval.Config{
		Searcher: kb,
		TopK:     int(c.topK),
		Logger:   c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating retrieval service: %w", err)
	}

	apiConfig := api.Config{
		ListenAddr: c.listen,
		Knowledge:  kb,
		Ingester:   pipeline,
		Retriever:  retriever,
		Logger:     c.logger,
	}

	if !c.noGeneration {
		apiConfig.Generator, err = c.newGenerator(retriever, publisher)
		if err != nil {
			return err
		}
	}

	server, err := api.NewServer(apiConfig)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	errChan := make(chan error, 2)

	if c.watch != "" {
		stopWatch, err := c.startWatcher(ctx, pipeline, errChan)
		if err != nil {
			return err
		}
		defer stopWatch()
	}

	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		_ = server.Shutdown()
		return err
	case <-ctx.Done():
		c.logger.Info("received signal, shutting down")
		return server.Shutdown()
	}
}

func (c *serveCommander) openLogFile() (io.WriteCloser, error) {
	path, err := dotdir.NewManager().Path(c.configDir, logFileName)
	if err != nil {
		return nil, fmt.Errorf("resolving log file: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

func (c *serveCommander) newKnowledgeBase(ctx context.Context) (*knowledge.Base, error) {
	embedder, err := embeddingutils.NewEmbedder(&embeddingutils.NewEmbedderOpts{
		ProviderType: c.embeddingProvider,
		TargetURL:    c.embeddingTarget,
		Model:        c.embeddingModel,
		Dimensions:   c.embeddingDimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	path := c.vectorStorePath
	if c.vectorStoreProvider == vectorutils.ProviderSQLite && path == "" {
		path, err = dotdir.NewManager().Path(c.configDir, knowledgeFileName)
		if err != nil {
			_ = embedder.Close()
			return nil, fmt.Errorf("resolving knowledge base path: %w", err)
		}
	}

	driver, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: c.vectorStoreProvider,
		TargetURL:    c.vectorStoreTarget,
		Path:         path,
		Collection:   c.vectorStoreCollection,
		Dimensions:   c.embeddingDimensions,
		Model:        embeddings.Identity(embedder),
		Logger:       c.logger,
	})
	if err != nil {
		_ = embedder.Close()
		return nil, fmt.Errorf("creating vector driver: %w", err)
	}

	kb, err := knowledge.New(knowledge.Config{
		Driver:   driver,
		Embedder: embedder,
		Logger:   c.logger,
	})
	if err != nil {
		return nil, errors.Join(err, driver.Close(), embedder.Close())
	}

	c.logger.Info("knowledge base ready",
		"vector_store_provider", c.vectorStoreProvider,
		"vector_store_target", c.vectorStoreTarget,
		"vector_store_path", path,
		"embedding_provider", c.embeddingProvider,
		"embedding_model", c.embeddingModel,
		"embedding_identity", embeddings.Identity(embedder),
		"embedding_dimensions", c.embeddingDimensions,
	)
	return kb, nil
}

func (c *serveCommander) newGenerator(retriever *retrieval.Service, publisher eventstream.Publisher) (*generate.Service, error) {
	llm, err := generate.NewLLMCaller(generate.LLMCallerConfig{
		Provider: c.generationProvider,
		Model:    c.generationModel,
		BaseURL:  c.generationTarget,
	})
	if err != nil {
		return nil, fmt.Errorf("creating generation model: %w", err)
	}

	c.logger.Info("generation enabled",
		"generation_provider", c.generationProvider,
		"generation_model", c.generationModel,
	)

	return generate.NewService(generate.Config{
		Retriever: retriever,
		LLM:       llm,
		Publisher: publisher,
		Logger:    c.logger,
	})
}

// startWatcher runs the directory watcher feeding a worker pool. The returned
// func stops the watcher and drains the pool.
func (c *serveCommander) startWatcher(ctx context.Context, pipeline *ingest.Pipeline, errChan chan<- error) (func(), error) {
	pool, err := worker.NewPool(&worker.Config{
		Ingester:   pipeline,
		NumWorkers: c.workers,
		OnResult: func(r worker.Result) {
			if r.Err == nil {
				c.logger.Debug("background ingest finished", "source", r.Job.Name, "chunks", r.Chunks)
			}
		},
		Logger: c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}

	watcher, err := watch.New(watch.Config{
		Dir:      c.watch,
		Enqueuer: pool,
		OnRemove: func(ctx context.Context, source string) {
			if err := pipeline.Remove(ctx, source); err != nil {
				c.logger.Error("removing source failed", "source", source, "error", err)
			}
		},
		Logger: c.logger,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := watcher.Run(watchCtx); err != nil {
			errChan <- fmt.Errorf("watcher error: %w", err)
		}
	}()

	return func() {
		cancel()
		<-done
		pool.Close()
	}, nil
}
