// Package chunker splits extracted document text into overlapping chunks
// sized for embedding.
//
// Chunks are measured in characters (runes). Each chunk ends on the coarsest
// boundary that fits inside the size window: a paragraph break, then a
// sentence end, then whitespace, and finally a hard character cut. The next
// chunk always starts exactly overlap characters before the previous one
// ended, so dropping the first overlap characters of every chunk after the
// first and concatenating the rest reproduces the input text.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

const (
	// DefaultSize is the maximum chunk length used by ingestion.
	DefaultSize = 1000

	// DefaultOverlap is the number of characters adjacent chunks share.
	DefaultOverlap = 100
)

// ErrInvalidConfig is returned by New for a size or overlap that cannot
// produce forward progress.
var ErrInvalidConfig = errors.New("invalid chunker config")

// Splitter is a recursive character splitter. It is safe for concurrent use.
type Splitter struct {
	size    int
	overlap int
}

// New creates a Splitter. size must be positive and overlap must be in
// [0, size).
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidConfig, size, overlap)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Default returns a Splitter with DefaultSize and DefaultOverlap.
func Default() *Splitter {
	return &Splitter{size: DefaultSize, overlap: DefaultOverlap}
}

// Size returns the maximum chunk length in characters.
func (s *Splitter) Size() int { return s.size }

// Overlap returns the number of characters adjacent chunks share.
func (s *Splitter) Overlap() int { return s.overlap }

// Split returns the ordered chunks of text. Empty or whitespace-only text
// yields no chunks. Text no longer than the chunk size yields one chunk
// equal to the text.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= s.size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for len(runes)-start > s.size {
		end := s.breakPoint(runes, start)
		chunks = append(chunks, string(runes[start:end]))
		start = end - s.overlap
	}
	return append(chunks, string(runes[start:]))
}

// boundary reports whether a chunk may end at index i, i.e. between
// runes[i-1] and runes[i].
type boundary func(runes []rune, i int) bool

// separators are tried coarsest first.
var separators = []boundary{
	paragraphEnd,
	sentenceEnd,
	wordEnd,
}

// breakPoint picks the end index for the chunk starting at start. The end
// lies in (start+overlap, start+size] so the next chunk starts after this
// one did.
func (s *Splitter) breakPoint(runes []rune, start int) int {
	lo := start + s.overlap + 1
	hi := start + s.size

	for _, isBoundary := range separators {
		for i := hi; i >= lo; i-- {
			if isBoundary(runes, i) {
				return i
			}
		}
	}
	return hi
}

func paragraphEnd(runes []rune, i int) bool {
	return i >= 2 && runes[i-1] == '\n' && runes[i-2] == '\n'
}

func sentenceEnd(runes []rune, i int) bool {
	if i < 1 {
		return false
	}
	if runes[i-1] == '\n' {
		return true
	}
	if i < 2 || !unicode.IsSpace(runes[i-1]) {
		return false
	}
	switch runes[i-2] {
	case '.', '!', '?':
		return true
	}
	return false
}

func wordEnd(runes []rune, i int) bool {
	return i >= 1 && unicode.IsSpace(runes[i-1])
}
