// Package api provides the HTTP API server for ingesting documentation,
// querying the knowledge base and generating tests.
package api

import (
	"log/slog"

	"github.com/papercomputeco/qagent/pkg/generate"
	"github.com/papercomputeco/qagent/pkg/ingest"
	"github.com/papercomputeco/qagent/pkg/knowledge"
	"github.com/papercomputeco/qagent/pkg/retrieval"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// Knowledge is the knowledge base backing every route.
	Knowledge *knowledge.Base

	// Ingester is the write path used by /v1/ingest, /v1/clear and
	// /v1/sources.
	Ingester *ingest.Pipeline

	// Retriever is the read path used by /v1/search and /v1/retrieve.
	Retriever *retrieval.Service

	// Generator serves /v1/generate. When nil those routes answer 503.
	Generator *generate.Service

	// BodyLimit caps request bodies in bytes. Defaults to 32 MiB.
	BodyLimit int

	Logger *slog.Logger
}
