package vector

import "errors"

var (
	// ErrNotFound is returned when a document is not found in the vector store.
	ErrNotFound = errors.New("document not found")

	// ErrConnection is returned when the vector store connection fails.
	ErrConnection = errors.New("vector store connection failed")

	// ErrDimensionMismatch is returned when an embedding's length differs
	// from the dimension of the store.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrModelMismatch is returned when a persisted store was built with a
	// different embedding model or dimension than the one configured.
	ErrModelMismatch = errors.New("embedding model mismatch")
)
