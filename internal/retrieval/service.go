package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"opsmind/backend/internal/middleware"
	"opsmind/backend/internal/vector"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type VectorStore interface {
	TopK(ctx context.Context, owner string, query []float32, k int) ([]vector.Match, error)
}

// Citation is the caller-facing view of one ranked match. The ordinal is the
// only identifier the generation model is told to cite, so it must agree
// exactly with the Source ID written into the context block.
type Citation struct {
	Ordinal  int    `json:"id"`
	Filename string `json:"filename"`
	Page     string `json:"page"`
	Score    string `json:"score"`
}

type Service struct {
	embedder Embedder
	store    VectorStore
	topK     int
	logger   *QueryLogger
}

func NewService(e Embedder, s VectorStore, topK int, l *QueryLogger) *Service {
	return &Service{embedder: e, store: s, topK: topK, logger: l}
}

// Retrieve embeds the query with the same strategy used at ingestion time and
// ranks the owner's corpus against it. An empty corpus returns an empty match
// set, all the way down to "no sources" citations.
func (s *Service) Retrieve(ctx context.Context, owner, query string) ([]vector.Match, error) {
	start := time.Now()

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	matches, err := s.store.TopK(ctx, owner, vec, s.topK)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			Query:         query,
			NumResults:    len(matches),
			Duration:      time.Since(start),
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
	}
	return matches, nil
}

// Assemble turns ranked matches into the citation list and the context block
// handed to the generation model. Both come out of the same loop so the
// ordinals cannot drift apart.
func Assemble(matches []vector.Match) ([]Citation, string) {
	citations := make([]Citation, 0, len(matches))
	parts := make([]string, 0, len(matches))

	for i, m := range matches {
		ordinal := i + 1
		page := "N/A"
		if m.Chunk.PageNumber != vector.PageUnknown {
			page = strconv.Itoa(m.Chunk.PageNumber)
		}

		citations = append(citations, Citation{
			Ordinal:  ordinal,
			Filename: m.Chunk.Filename,
			Page:     page,
			Score:    fmt.Sprintf("%.1f", m.Score*100),
		})

		parts = append(parts, fmt.Sprintf(
			"[SOURCE START]\nSource ID: %d\nDocument: %s\nPage: %s\nContent:\n%s\n[SOURCE END]",
			ordinal, m.Chunk.Filename, page, m.Chunk.Text))
	}

	return citations, strings.Join(parts, "\n\n")
}
