package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"opsmind/backend/internal/embedding"
)

// Embedder is the remote embedding strategy. Failures surface as
// embedding.ErrUnavailable so ingestion can fall back per chunk instead of
// aborting the batch; it never fabricates a vector itself.
type Embedder struct {
	client *genai.Client
	model  string
	dims   int
}

func NewEmbedder(ctx context.Context, apiKey, model string, dims int, opts ...option.ClientOption) (*Embedder, error) {
	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Embedder{client: client, model: model, dims: dims}, nil
}

func (e *Embedder) Dimensions() int { return e.dims }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	slog.DebugContext(ctx, "embedding content", "model", e.model, "length", len(text))

	em := e.client.EmbeddingModel(e.model)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", embedding.ErrUnavailable, err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: empty embedding received", embedding.ErrUnavailable)
	}
	if len(res.Embedding.Values) != e.dims {
		// Storing a vector of the wrong length would corrupt the similarity
		// space for every later query, so this is a hard error.
		return nil, fmt.Errorf("embedding dimensionality mismatch: got %d, configured %d", len(res.Embedding.Values), e.dims)
	}
	return res.Embedding.Values, nil
}

func (e *Embedder) Close() error {
	return e.client.Close()
}
