// Package vector holds the chunk model, the linear-scan cosine ranker and the
// Postgres-backed store. Ranking is a deliberate full scan: the corpus is
// always a single document's worth of chunks, so an index would buy nothing
// and cost determinism.
package vector

import "time"

// PageUnknown marks a chunk whose originating page could not be tracked.
const PageUnknown = 0

// Chunk is one retrievable text segment. Immutable once stored; the whole set
// for an owner is replaced on the next ingestion.
type Chunk struct {
	ID         string
	Owner      string
	Filename   string
	ChunkIndex int
	PageNumber int
	Text       string
	Embedding  []float32
	CreatedAt  time.Time
}

// Match pairs a chunk with its similarity score for one query. Never
// persisted; recomputed on every query.
type Match struct {
	Chunk Chunk
	Score float64
}
