// Package inmemory provides a process-local vector driver. Its contents are
// lost when the process exits.
package inmemory

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/papercomputeco/qagent/pkg/vector"
)

type entry struct {
	doc     vector.Document
	ordinal uint64
}

// Driver implements vector.Driver with a map guarded by a mutex and a brute
// force cosine scan on Query.
type Driver struct {
	mu     sync.RWMutex
	docs   map[string]*entry
	next   uint64
	dims   uint
	logger *slog.Logger
}

// Config holds configuration for the in-memory driver.
type Config struct {
	// Dimensions fixes the embedding length. When zero it is taken from the
	// first document added.
	Dimensions uint
}

// NewDriver creates an empty in-memory driver.
func NewDriver(c Config, logger *slog.Logger) *Driver {
	logger.Info("in-memory vector driver initialized",
		"dimensions", c.Dimensions,
	)

	return &Driver{
		docs:   make(map[string]*entry),
		dims:   c.Dimensions,
		logger: logger,
	}
}

// Add stores documents, replacing any with the same ID. A replaced document
// keeps its original insertion position.
func (d *Driver) Add(_ context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.add(docs); err != nil {
		return err
	}

	d.logger.Debug("added documents to memory", "count", len(docs))
	return nil
}

// ReplaceSource upserts docs and trims the older chunks of source under one
// lock, so readers never see a mix of both versions.
func (d *Driver) ReplaceSource(_ context.Context, source string, docs []vector.Document) error {
	if err := vector.CheckSource(source, docs); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(docs) > 0 {
		if err := d.add(docs); err != nil {
			return err
		}
	}
	d.trim(source, len(docs))
	return nil
}

func (d *Driver) add(docs []vector.Document) error {
	dims := d.dims
	if dims == 0 {
		dims = uint(len(docs[0].Embedding))
	}
	if err := vector.CheckDimensions(dims, docs); err != nil {
		return err
	}
	d.dims = dims

	for _, doc := range docs {
		doc.Embedding = append([]float32(nil), doc.Embedding...)
		if existing, ok := d.docs[doc.ID]; ok {
			existing.doc = doc
			continue
		}
		d.docs[doc.ID] = &entry{doc: doc, ordinal: d.next}
		d.next++
	}
	return nil
}

// Query scores every stored document against embedding.
func (d *Driver) Query(_ context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.docs) == 0 {
		return nil, nil
	}
	if d.dims != 0 && uint(len(embedding)) != d.dims {
		return nil, vector.ErrDimensionMismatch
	}

	type scored struct {
		result  vector.QueryResult
		ordinal uint64
	}
	all := make([]scored, 0, len(d.docs))
	for _, e := range d.docs {
		all = append(all, scored{
			result: vector.QueryResult{
				Document: e.doc,
				Score:    vector.CosineSimilarity(embedding, e.doc.Embedding),
			},
			ordinal: e.ordinal,
		})
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].result.Score != all[j].result.Score {
			return all[i].result.Score > all[j].result.Score
		}
		return all[i].ordinal < all[j].ordinal
	})

	if topK > len(all) {
		topK = len(all)
	}
	results := make([]vector.QueryResult, topK)
	for i := range results {
		results[i] = all[i].result
	}
	return results, nil
}

// Get retrieves documents by their IDs.
func (d *Driver) Get(_ context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	docs := make([]vector.Document, 0, len(ids))
	for _, id := range ids {
		if e, ok := d.docs[id]; ok {
			docs = append(docs, e.doc)
		}
	}
	return docs, nil
}

// TrimSource removes the chunks of source at or beyond sequence from.
func (d *Driver) TrimSource(_ context.Context, source string, from int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.trim(source, from)
	return nil
}

func (d *Driver) trim(source string, from int) {
	for id, e := range d.docs {
		if e.doc.Source == source && e.doc.Sequence >= from {
			delete(d.docs, id)
		}
	}
}

// Clear drops every document.
func (d *Driver) Clear(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.docs = make(map[string]*entry)
	d.next = 0
	return nil
}

// Count returns the number of stored documents.
func (d *Driver) Count(_ context.Context) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.docs), nil
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}

var _ vector.Driver = (*Driver)(nil)
