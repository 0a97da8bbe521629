// Package hashing implements a deterministic, offline Embedder based on
// feature hashing of word tokens. It needs no model server, which makes it
// useful for air-gapped setups and for tests. Similarity reflects shared
// vocabulary rather than meaning.
package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/papercomputeco/qagent/pkg/embeddings"
)

// DefaultDimensions is used when no dimension is configured.
const DefaultDimensions = 256

// Embedder hashes lower-cased word tokens into a fixed number of buckets and
// L2 normalizes the result.
type Embedder struct {
	dims int
}

// NewEmbedder creates a hashing embedder producing vectors of dims
// dimensions.
func NewEmbedder(dims uint) *Embedder {
	if dims == 0 {
		dims = DefaultDimensions
	}
	return &Embedder{dims: int(dims)}
}

// Embed converts text into a vector embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, e.dims)
	for _, tok := range tokenize(text) {
		e.add(vec, tok)
	}

	// Colliding tokens can cancel out, and text without letters or digits
	// has no tokens at all. Either way the vector would have no direction,
	// so the whole text is hashed as one token instead.
	if isZero(vec) {
		e.add(vec, "\x00"+strings.TrimSpace(text))
	}

	normalize(vec)
	return vec, nil
}

func (e *Embedder) add(vec []float32, tok string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tok))
	sum := h.Sum64()

	// The top bit picks the sign so collisions tend to cancel out.
	sign := float32(1)
	if sum>>63 == 1 {
		sign = -1
	}
	vec[sum%uint64(e.dims)] += sign
}

// Identity names the embedder by its dimension, since the hashing scheme has
// no model.
func (e *Embedder) Identity() string {
	return "hashing/" + strconv.Itoa(e.dims)
}

// EmbedBatch embeds every text in order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Close releases resources held by the embedder.
func (e *Embedder) Close() error {
	return nil
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}

var (
	_ embeddings.BatchEmbedder = (*Embedder)(nil)
	_ embeddings.Identifier    = (*Embedder)(nil)
)
