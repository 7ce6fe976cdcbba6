package vector

import (
	"math"
	"sort"
)

// Cosine returns dot(a,b) / (||a|| * ||b||). The result is NaN when either
// vector has zero norm; callers rank NaN below every real score instead of
// treating it as an error.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Rank scores every chunk against the query vector and returns the top k
// matches sorted descending. The sort is stable so chunks with exactly equal
// scores keep their storage order and repeated queries against an unchanged
// corpus are deterministic.
func Rank(chunks []Chunk, query []float32, k int) []Match {
	if len(chunks) == 0 || k <= 0 {
		return nil
	}

	matches := make([]Match, 0, len(chunks))
	for _, c := range chunks {
		matches = append(matches, Match{Chunk: c, Score: Cosine(c.Embedding, query)})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return sortScore(matches[i].Score) > sortScore(matches[j].Score)
	})

	if k < len(matches) {
		matches = matches[:k]
	}
	return matches
}

// sortScore maps NaN (zero-norm vector) to the bottom of the ranking.
func sortScore(s float64) float64 {
	if math.IsNaN(s) {
		return math.Inf(-1)
	}
	return s
}
