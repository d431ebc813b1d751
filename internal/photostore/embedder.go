package photostore

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// EmbedderOptions configures the text embedder backing similarity search.
type EmbedderOptions struct {
	Provider   string // "openai" or "ollama"
	Model      string
	APIKey     string
	OllamaHost string
	Dimension  int
}

// Embedder wraps a langchaingo embedding model with dimension validation.
type Embedder struct {
	model     embeddings.Embedder
	dimension int
}

// NewEmbedder creates an embedder for the configured provider.
func NewEmbedder(opts EmbedderOptions) (*Embedder, error) {
	var model embeddings.Embedder
	var err error

	switch opts.Provider {
	case "openai":
		if opts.APIKey == "" {
			return nil, fmt.Errorf("embedding api key required")
		}
		llm, openaiErr := openai.New(
			openai.WithToken(opts.APIKey),
			openai.WithEmbeddingModel(opts.Model),
		)
		if openaiErr != nil {
			return nil, fmt.Errorf("create openai client: %w", openaiErr)
		}
		model, err = embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create openai embedder: %w", err)
		}
	case "ollama":
		llm, ollamaErr := ollama.New(
			ollama.WithModel(opts.Model),
			ollama.WithServerURL(opts.OllamaHost),
		)
		if ollamaErr != nil {
			return nil, fmt.Errorf("create ollama client: %w", ollamaErr)
		}
		model, err = embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create ollama embedder: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", opts.Provider)
	}

	return &Embedder{model: model, dimension: opts.Dimension}, nil
}

// Embed generates an embedding vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.model.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	if len(vectors[0]) != e.dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(vectors[0]), e.dimension)
	}
	return vectors[0], nil
}

// Dimension returns the expected embedding dimension.
func (e *Embedder) Dimension() int {
	return e.dimension
}
