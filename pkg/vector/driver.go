// Package vector provides interfaces and implementations for vector storage
// of knowledge base chunks.
package vector

import (
	"context"
	"fmt"
	"math"
)

// Document represents a stored chunk with its embedding and provenance.
type Document struct {
	// ID is a unique identifier for the document, see DocumentID.
	ID string

	// Source is the filename the chunk was extracted from.
	Source string

	// Sequence is the position of the chunk within its source.
	Sequence int

	// Text is the chunk content.
	Text string

	// Embedding is the vector representation of Text.
	Embedding []float32
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score is the cosine similarity to the query (higher = more similar).
	Score float32
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// Add stores documents with their embeddings in one atomic write.
	// If a document with the same ID already exists it is replaced.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK most similar documents to the given embedding,
	// in descending score order. Equal scores keep insertion order.
	Query(ctx context.Context, embedding []float32, topK int) ([]QueryResult, error)

	// Get retrieves documents by their IDs. Unknown IDs are skipped.
	Get(ctx context.Context, ids []string) ([]Document, error)

	// ReplaceSource makes docs the whole content of source. docs carry
	// sequences 0 to len(docs)-1. They are upserted and every older document
	// of source with a higher sequence is removed. Drivers with transactions
	// apply both steps atomically.
	ReplaceSource(ctx context.Context, source string, docs []Document) error

	// TrimSource removes every document of source whose Sequence is >= from.
	TrimSource(ctx context.Context, source string, from int) error

	// Clear atomically removes every document.
	Clear(ctx context.Context) error

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the driver.
	Close() error
}

// DocumentID derives the stable identifier of a chunk from its source and
// sequence, so re-ingesting a source overwrites its previous chunks.
func DocumentID(source string, sequence int) string {
	return fmt.Sprintf("%s#%06d", source, sequence)
}

// CheckDimensions returns ErrDimensionMismatch when any document embedding
// does not have exactly dims entries. A dims of zero disables the check.
func CheckDimensions(dims uint, docs []Document) error {
	if dims == 0 {
		return nil
	}
	for _, doc := range docs {
		if uint(len(doc.Embedding)) != dims {
			return fmt.Errorf("%w: document %s has %d dimensions, store expects %d",
				ErrDimensionMismatch, doc.ID, len(doc.Embedding), dims)
		}
	}
	return nil
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either vector has zero magnitude or their lengths differ.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// CheckSource returns an error when any document belongs to a source other
// than source.
func CheckSource(source string, docs []Document) error {
	for _, doc := range docs {
		if doc.Source != source {
			return fmt.Errorf("document %s belongs to %q, not %q", doc.ID, doc.Source, source)
		}
	}
	return nil
}
