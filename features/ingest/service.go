package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"opsmind/backend/internal/embedding"
	"opsmind/backend/internal/extract"
	"opsmind/backend/internal/middleware"
	"opsmind/backend/internal/text"
	"opsmind/backend/internal/vector"
)

const completedTopic = "ingest.completed"

type ChunkStore interface {
	Replace(ctx context.Context, owner string, chunks []vector.Chunk) error
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TranscriptPurger clears an owner's chat history when their corpus is
// replaced; history is scoped to the current document.
type TranscriptPurger interface {
	DeleteByOwner(ctx context.Context, owner string) error
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Config struct {
	ChunkSize   int
	Overlap     int
	Dimensions  int
	Concurrency int
}

// Service runs the ingestion pipeline: chunk the extracted pages, embed every
// chunk, and atomically replace the owner's corpus. The knowledge base is
// always the single most recent upload.
type Service struct {
	store    ChunkStore
	chats    TranscriptPurger
	embedder Embedder
	pub      EventPublisher
	cfg      Config
}

func NewService(store ChunkStore, chats TranscriptPurger, embedder Embedder, pub EventPublisher, cfg Config) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Service{store: store, chats: chats, embedder: embedder, pub: pub, cfg: cfg}
}

// Ingest stores the document and returns the number of chunks written.
//
// A failed embed for one chunk does not abort the batch: the chunk gets a
// random-noise vector and ingestion continues. Partial corpus quality beats a
// failed upload.
func (s *Service) Ingest(ctx context.Context, owner, filename string, pages []extract.Page) (int, error) {
	chunks := s.chunkPages(owner, filename, pages)

	s.embedAll(ctx, chunks)

	if err := s.store.Replace(ctx, owner, chunks); err != nil {
		return 0, err
	}

	// Old chunks and the conversation about them go together: transcripts
	// describe a corpus that no longer exists. The purge runs only after the
	// swap succeeds, so a failed Replace leaves the old corpus and its
	// history intact together.
	if err := s.chats.DeleteByOwner(ctx, owner); err != nil {
		slog.WarnContext(ctx, "failed to clear chat history", "error", err, "owner", owner)
	}

	s.publishCompleted(ctx, owner, filename, len(chunks))

	slog.InfoContext(ctx, "document ingested", "filename", filename, "chunks", len(chunks), "pages", len(pages))
	return len(chunks), nil
}

func (s *Service) chunkPages(owner, filename string, pages []extract.Page) []vector.Chunk {
	var chunks []vector.Chunk
	index := 0

	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		for _, piece := range text.Chunk(page.Text, s.cfg.ChunkSize, s.cfg.Overlap) {
			trimmed := strings.TrimSpace(piece)
			if trimmed == "" {
				continue
			}
			chunks = append(chunks, vector.Chunk{
				Owner:      owner,
				Filename:   filename,
				ChunkIndex: index,
				PageNumber: page.Number,
				Text:       trimmed,
			})
			index++
		}
	}
	return chunks
}

// embedAll fills in chunk vectors concurrently. Chunks are independent, so
// the only coordination is the semaphore bounding in-flight embeds against a
// rate-limited remote backend.
func (s *Service) embedAll(ctx context.Context, chunks []vector.Chunk) {
	sem := make(chan struct{}, s.cfg.Concurrency)
	var wg sync.WaitGroup

	for i := range chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(c *vector.Chunk) {
			defer wg.Done()
			defer func() { <-sem }()

			vec, err := s.embedder.Embed(ctx, c.Text)
			if err != nil {
				if !errors.Is(err, embedding.ErrUnavailable) {
					slog.ErrorContext(ctx, "embedding failed", "error", err, "chunk_index", c.ChunkIndex)
				} else {
					slog.WarnContext(ctx, "embedding backend unavailable, storing noise vector", "chunk_index", c.ChunkIndex)
				}
				vec = embedding.Noise(s.cfg.Dimensions)
			}
			c.Embedding = vec
		}(&chunks[i])
	}
	wg.Wait()
}

func (s *Service) publishCompleted(ctx context.Context, owner, filename string, count int) {
	if s.pub == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"owner":          owner,
		"filename":       filename,
		"total_chunks":   count,
		"correlation_id": middleware.GetCorrelationID(ctx),
	})
	if err := s.pub.Publish(completedTopic, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish ingest.completed event", "error", err)
	} else {
		slog.InfoContext(ctx, "published ingest.completed event", "filename", filename)
	}
}
