package api

import (
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/qagent/api/mcp"
	"github.com/papercomputeco/qagent/pkg/logger"
)

const defaultBodyLimit = 32 << 20

// Server is the API server for the qagent knowledge base.
type Server struct {
	config   Config
	logger   *slog.Logger
	validate *validator.Validate
	app      *fiber.App
}

// NewServer creates a new API server. The knowledge base, ingester and
// retriever are injected so they can be shared with a directory watcher
// running in the same process.
func NewServer(config Config) (*Server, error) {
	if config.Knowledge == nil {
		return nil, errors.New("knowledge base is required")
	}
	if config.Ingester == nil {
		return nil, errors.New("ingester is required")
	}
	if config.Retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.BodyLimit <= 0 {
		config.BodyLimit = defaultBodyLimit
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             config.BodyLimit,
		// source file names are path parameters and may contain spaces
		UnescapePath: true,
	})

	s := &Server{
		config:   config,
		logger:   config.Logger,
		validate: validator.New(),
		app:      app,
	}

	mcpConfig := mcp.Config{
		Retriever: config.Retriever,
		Counter:   config.Knowledge,
		Logger:    config.Logger,
	}
	if config.Generator != nil {
		mcpConfig.Generator = config.Generator
	}
	mcpServer, err := mcp.NewServer(mcpConfig)
	if err != nil {
		return nil, err
	}

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1")
	v1.Post("/ingest", s.handleIngest)
	v1.Post("/clear", s.handleClear)
	v1.Get("/sources/:source", s.handleGetSource)
	v1.Delete("/sources/:source", s.handleRemoveSource)
	v1.Get("/stats", s.handleStats)
	v1.Get("/search", s.handleSearchEndpoint)
	v1.Post("/retrieve", s.handleRetrieve)
	v1.Post("/generate/tests", s.handleGenerateTests)
	v1.Post("/generate/selenium", s.handleGenerateSelenium)

	app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
