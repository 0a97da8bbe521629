// Package embeddings defines the embedding provider boundary.
package embeddings

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable marks any failure of the embedding provider: network,
// auth, quota or a malformed response. Callers match it with errors.Is to
// tell provider outages apart from store errors.
var ErrUnavailable = errors.New("embedding unavailable")

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}

// Identifier is an Embedder that can name the provider and model behind
// its vectors. Vector stores record the identity and refuse to reopen under
// a different one.
type Identifier interface {
	Identity() string
}

// Identity returns e's identity, or its Go type name when e does not
// implement Identifier.
func Identity(e Embedder) string {
	if id, ok := e.(Identifier); ok {
		return id.Identity()
	}
	return fmt.Sprintf("%T", e)
}

// BatchEmbedder is an Embedder that can embed many texts in one call.
// EmbedBatch must return exactly what calling Embed on each text would.
type BatchEmbedder interface {
	Embedder

	// EmbedBatch converts texts into embeddings, one per text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedBatch embeds texts with e, using the native batch call when e
// supports it and falling back to one Embed call per text otherwise.
func EmbedBatch(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if be, ok := e.(BatchEmbedder); ok {
		out, err := be.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(out) != len(texts) {
			return nil, fmt.Errorf("%w: provider returned %d embeddings for %d texts", ErrUnavailable, len(out), len(texts))
		}
		return out, nil
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}
