// Package embedding provides the local deterministic embedding strategy and
// shared embedding-layer errors. The remote strategy lives in
// internal/adapter/gemini; both produce vectors in the same configured
// dimensionality, and ingestion and query must always go through the same
// strategy or the similarity space is silently corrupted.
package embedding

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
)

// ErrUnavailable marks a remote embedding backend failure so callers can
// distinguish it from programming errors and apply their fallback policy.
var ErrUnavailable = errors.New("embedding backend unavailable")

// Local maps text to a fixed-length vector with word hashing: no network, no
// model. Semantically crude, but deterministic and always available, which is
// exactly what the fallback path needs.
type Local struct {
	dims int
}

func NewLocal(dims int) *Local {
	return &Local{dims: dims}
}

func (l *Local) Dimensions() int { return l.dims }

// Embed lowercases the text, hashes each whitespace-separated word into one
// of dims buckets and L2-normalizes the bucket counts. An all-whitespace
// input yields the zero vector (norm 0), never an error.
func (l *Local) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, l.dims)

	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := hashWord(word)
		vec[int(h)%l.dims]++
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec, nil
	}

	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

// hashWord is a djb2-style multiplicative hash folded into the signed 32-bit
// range, mirroring what the corpus was originally embedded with. Changing it
// invalidates every stored vector.
func hashWord(word string) uint32 {
	h := int32(5381)
	for _, r := range word {
		h = h<<5 + h + int32(r)
	}
	if h < 0 {
		return uint32(-int64(h))
	}
	return uint32(h)
}

// Noise returns a random vector used in place of a chunk whose remote
// embedding failed during ingestion. A noisy vector keeps the chunk stored
// and the batch alive; a zero vector would poison cosine scores with NaN.
func Noise(dims int) []float32 {
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = rand.Float32()
	}
	return vec
}
