// Package knowledge is the single owner of the knowledge base: an embedder
// and a vector driver behind one writer lock.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/papercomputeco/qagent/pkg/embeddings"
	"github.com/papercomputeco/qagent/pkg/logger"
	"github.com/papercomputeco/qagent/pkg/vector"
)

// Chunk is a fragment of a source document.
type Chunk struct {
	Text     string
	Source   string
	Sequence int
}

// Match is a chunk returned by Search with its cosine similarity.
type Match struct {
	Chunk
	Score float32
}

// Config configures a Base.
type Config struct {
	Driver   vector.Driver
	Embedder embeddings.Embedder
	Logger   *slog.Logger
}

// Base is the knowledge base. Writes are serialized; searches run
// concurrently with each other.
type Base struct {
	mu       sync.RWMutex
	driver   vector.Driver
	embedder embeddings.Embedder
	logger   *slog.Logger
}

// New creates a Base over the given driver and embedder. The Base owns both
// and closes them on Close.
func New(cfg Config) (*Base, error) {
	if cfg.Driver == nil {
		return nil, errors.New("vector driver is required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	return &Base{
		driver:   cfg.Driver,
		embedder: cfg.Embedder,
		logger:   cfg.Logger,
	}, nil
}

// Add embeds chunks and stores them in one atomic write. Embedding happens
// before the write lock is taken.
func (b *Base) Add(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	docs, err := b.embed(ctx, chunks)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.driver.Add(ctx, docs); err != nil {
		return fmt.Errorf("storing chunks: %w", err)
	}
	return nil
}

// Replace makes chunks the full content of source: they are upserted by
// sequence and any older chunks beyond len(chunks) are removed, atomically
// where the driver supports transactions. chunks must carry sequences 0 to
// len(chunks)-1. Retrying a Replace with the same input is safe.
func (b *Base) Replace(ctx context.Context, source string, chunks []Chunk) error {
	for i := range chunks {
		if chunks[i].Source != source {
			return fmt.Errorf("chunk %d belongs to %q, not %q", i, chunks[i].Source, source)
		}
		if chunks[i].Sequence != i {
			return fmt.Errorf("chunk %d of %q has sequence %d", i, source, chunks[i].Sequence)
		}
	}

	var docs []vector.Document
	if len(chunks) > 0 {
		var err error
		docs, err = b.embed(ctx, chunks)
		if err != nil {
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.driver.ReplaceSource(ctx, source, docs); err != nil {
		return fmt.Errorf("replacing %s: %w", source, err)
	}

	b.logger.Debug("replaced source", "source", source, "chunks", len(chunks))
	return nil
}

// RemoveSource deletes every chunk of source.
func (b *Base) RemoveSource(ctx context.Context, source string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.driver.TrimSource(ctx, source, 0); err != nil {
		return fmt.Errorf("removing source %s: %w", source, err)
	}
	return nil
}

// chunkPage is the number of chunk IDs requested per driver Get in Chunks.
const chunkPage = 64

// Chunks returns the stored chunks of source in sequence order. Sources are
// stored with contiguous sequences, so IDs are fetched page by page until a
// page comes back short.
func (b *Base) Chunks(ctx context.Context, source string) ([]Chunk, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var chunks []Chunk
	for start := 0; ; start += chunkPage {
		ids := make([]string, chunkPage)
		for i := range ids {
			ids[i] = vector.DocumentID(source, start+i)
		}

		docs, err := b.driver.Get(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("reading chunks of %s: %w", source, err)
		}
		sort.Slice(docs, func(i, j int) bool { return docs[i].Sequence < docs[j].Sequence })
		for _, d := range docs {
			chunks = append(chunks, Chunk{Text: d.Text, Source: d.Source, Sequence: d.Sequence})
		}
		if len(docs) < chunkPage {
			return chunks, nil
		}
	}
}

// Search returns up to k chunks nearest to query in descending similarity.
// It does not call the embedder when k <= 0 or the base is empty.
func (b *Base) Search(ctx context.Context, query string, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	n, err := b.driver.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	embedding, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := b.driver.Query(ctx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			Chunk: Chunk{
				Text:     r.Text,
				Source:   r.Source,
				Sequence: r.Sequence,
			},
			Score: r.Score,
		}
	}
	return matches, nil
}

// Clear atomically empties the base.
func (b *Base) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.driver.Clear(ctx); err != nil {
		return fmt.Errorf("clearing knowledge base: %w", err)
	}

	b.logger.Info("knowledge base cleared")
	return nil
}

// Count returns the number of stored chunks.
func (b *Base) Count(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.driver.Count(ctx)
}

// Close closes the driver and the embedder.
func (b *Base) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return errors.Join(b.driver.Close(), b.embedder.Close())
}

func (b *Base) embed(ctx context.Context, chunks []Chunk) ([]vector.Document, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := embeddings.EmbedBatch(ctx, b.embedder, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}

	docs := make([]vector.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = vector.Document{
			ID:        vector.DocumentID(c.Source, c.Sequence),
			Source:    c.Source,
			Sequence:  c.Sequence,
			Text:      c.Text,
			Embedding: vectors[i],
		}
	}
	return docs, nil
}
