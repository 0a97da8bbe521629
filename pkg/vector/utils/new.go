// Package vectorutils builds a vector.Driver from configuration.
package vectorutils

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/qagent/pkg/vector"
	"github.com/papercomputeco/qagent/pkg/vector/chroma"
	"github.com/papercomputeco/qagent/pkg/vector/inmemory"
	"github.com/papercomputeco/qagent/pkg/vector/pgvector"
	"github.com/papercomputeco/qagent/pkg/vector/qdrant"
	"github.com/papercomputeco/qagent/pkg/vector/sqlitevec"
)

// Provider names accepted by NewVectorDriver.
const (
	ProviderMemory   = "memory"
	ProviderSQLite   = "sqlite"
	ProviderPostgres = "postgres"
	ProviderChroma   = "chroma"
	ProviderQdrant   = "qdrant"
)

// Providers lists the supported provider names.
var Providers = []string{ProviderMemory, ProviderSQLite, ProviderPostgres, ProviderChroma, ProviderQdrant}

type NewVectorDriverOpts struct {
	ProviderType string

	// TargetURL is the server address for chroma, qdrant and postgres.
	TargetURL string

	// Path is the database file for sqlite.
	Path string

	Collection string
	Dimensions uint

	// Model is the embedder identity recorded by persistent stores. See
	// embeddings.Identity.
	Model string

	Logger *slog.Logger
}

func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case ProviderMemory:
		return inmemory.NewDriver(inmemory.Config{
			Dimensions: o.Dimensions,
		}, o.Logger), nil
	case ProviderSQLite:
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     o.Path,
			Dimensions: o.Dimensions,
			Model:      o.Model,
		}, o.Logger)
	case ProviderPostgres:
		return pgvector.NewDriver(ctx, pgvector.Config{
			ConnString: o.TargetURL,
			Dimensions: o.Dimensions,
			Model:      o.Model,
		}, o.Logger)
	case ProviderChroma:
		return chroma.NewDriver(chroma.Config{
			URL:            o.TargetURL,
			CollectionName: o.Collection,
			Dimensions:     o.Dimensions,
			Model:          o.Model,
		}, o.Logger)
	case ProviderQdrant:
		return qdrant.NewDriver(ctx, qdrant.Config{
			Target:     o.TargetURL,
			Collection: o.Collection,
			Dimensions: o.Dimensions,
			Model:      o.Model,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
