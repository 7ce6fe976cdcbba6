package chat

import (
	"context"
	"log/slog"
	"strings"

	"opsmind/backend/internal/retrieval"
	"opsmind/backend/internal/vector"
)

type Retriever interface {
	Retrieve(ctx context.Context, owner, query string) ([]vector.Match, error)
}

type Streamer interface {
	Stream(ctx context.Context, contextBlock, query string, emit func(string) error) error
}

type TranscriptRepo interface {
	Create(ctx context.Context, owner, role, content string) error
	History(ctx context.Context, owner string) ([]Entry, error)
	DeleteByOwner(ctx context.Context, owner string) error
}

type CorpusCounter interface {
	CountByOwner(ctx context.Context, owner string) (int, error)
}

// Emitter receives the chat stream in order: exactly one Sources call, zero or
// more Text fragments, then exactly one Done. The transport (SSE) lives behind
// this interface so the pipeline can be tested without an HTTP server.
type Emitter interface {
	Sources(citations []retrieval.Citation) error
	Text(fragment string) error
	Done() error
}

type Service struct {
	retriever Retriever
	streamer  Streamer
	repo      TranscriptRepo
	corpus    CorpusCounter
}

func NewService(r Retriever, s Streamer, repo TranscriptRepo, corpus CorpusCounter) *Service {
	return &Service{retriever: r, streamer: s, repo: repo, corpus: corpus}
}

// Ask runs the full query pipeline for one question: persist the user turn,
// retrieve and rank context, emit the citation list, then stream the answer.
// The bot turn is persisted only after the stream completes; a client that
// disconnects mid-answer leaves no partial bot entry behind.
//
// Anonymous callers (empty owner) get the same answer but no transcript.
func (s *Service) Ask(ctx context.Context, owner, query string, em Emitter) error {
	if owner != "" {
		if err := s.repo.Create(ctx, owner, RoleUser, query); err != nil {
			slog.ErrorContext(ctx, "failed to persist user message", "error", err)
		}
	}

	matches, err := s.retriever.Retrieve(ctx, owner, query)
	if err != nil {
		// A failed retrieval degrades to "no sources" rather than killing
		// the stream; the generator will answer from an empty context.
		slog.WarnContext(ctx, "retrieval failed, continuing without sources", "error", err)
		matches = nil
	}

	citations, contextBlock := retrieval.Assemble(matches)
	if err := em.Sources(citations); err != nil {
		return err
	}

	var answer strings.Builder
	err = s.streamer.Stream(ctx, contextBlock, query, func(fragment string) error {
		answer.WriteString(fragment)
		return em.Text(fragment)
	})
	if err != nil {
		return err
	}

	if err := em.Done(); err != nil {
		return err
	}

	if owner != "" && answer.Len() > 0 && ctx.Err() == nil {
		if err := s.repo.Create(ctx, owner, RoleBot, answer.String()); err != nil {
			slog.ErrorContext(ctx, "failed to persist bot message", "error", err)
		}
	}
	return nil
}

// History returns the owner's transcript. A transcript only makes sense
// against the corpus it was answered from, so when the owner has no indexed
// chunks any surviving entries are purged and an empty list is returned.
func (s *Service) History(ctx context.Context, owner string) ([]Entry, error) {
	count, err := s.corpus.CountByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		if err := s.repo.DeleteByOwner(ctx, owner); err != nil {
			slog.ErrorContext(ctx, "failed to purge stale chat history", "error", err)
		}
		return []Entry{}, nil
	}
	return s.repo.History(ctx, owner)
}
