package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"guarded-rag/internal/config"
	"guarded-rag/internal/models"
)

// ErrCountMismatch means the service returned a different number of vectors
// than texts submitted, so positional pairing is impossible.
var ErrCountMismatch = errors.New("embedding count does not match input count")

// NewEmbedder creates an OpenAI embedder. Newlines are kept as-is and every
// chunk fits in a single request unless the corpus exceeds the batch size.
func NewEmbedder(cfg *config.EmbeddingConfig, apiKey string) (*embeddings.EmbedderImpl, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai api key", config.ErrMissingCredential)
	}

	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.TimeoutSecs) * time.Second}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	log.Debug().Interface("config", map[string]any{
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
		"batch_size":      cfg.BatchSize,
	}).Msg("Creating embedder")

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultBatchSize
	}
	return embeddings.NewEmbedder(llm,
		embeddings.WithBatchSize(batchSize),
		embeddings.WithStripNewLines(false),
	)
}

// EmbedChunks embeds every guarded chunk and pairs text i with vector i.
func EmbedChunks(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk) ([]models.ChunkEmbedding, error) {
	if len(chunks) == 0 {
		log.Info().Msg("No chunks to embed")
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: sent %d, got %d", ErrCountMismatch, len(texts), len(vectors))
	}

	result := make([]models.ChunkEmbedding, len(texts))
	for i := range texts {
		result[i] = models.ChunkEmbedding{Content: texts[i], Embedding: vectors[i]}
	}
	return result, nil
}

// EmbedPrompt embeds the user prompt in a request of its own.
func EmbedPrompt(ctx context.Context, embedder embeddings.Embedder, prompt string) ([]float32, error) {
	vector, err := embedder.EmbedQuery(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("embed prompt: %w", err)
	}
	if len(vector) == 0 {
		return nil, errors.New("embed prompt: empty embedding returned")
	}
	return vector, nil
}
