package rag

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"guarded-rag/internal/config"
	"guarded-rag/internal/embedding"
	"guarded-rag/internal/guard"
	"guarded-rag/internal/llmservice"
	"guarded-rag/internal/models"
	"guarded-rag/internal/parser"
)

// Ranker orders chunk embeddings by similarity to the query and keeps k.
type Ranker interface {
	TopK(ctx context.Context, query []float32, items []models.ChunkEmbedding, k int) ([]models.ScoredChunk, error)
}

type RAG struct {
	cfg      *config.Config
	guard    guard.Guard
	embedder embeddings.Embedder
	ranker   Ranker
	answerer llmservice.Answerer
}

func NewRAG(cfg *config.Config, g guard.Guard, embedder embeddings.Embedder, ranker Ranker, answerer llmservice.Answerer) *RAG {
	return &RAG{cfg: cfg, guard: g, embedder: embedder, ranker: ranker, answerer: answerer}
}

// Retrieve reads and chunks the documents, filters every chunk through the
// guard, embeds chunks and prompt and returns the best matching chunks.
func (r *RAG) Retrieve(ctx context.Context, prompt string) ([]models.ScoredChunk, error) {
	log.Info().Str("data_dir", r.cfg.DataDir).Msg("Reading documents...")
	docs, err := parser.LoadDocuments(r.cfg.DataDir, r.cfg.Loader)
	if err != nil {
		return nil, err
	}
	chunks := parser.ChunkDocuments(docs, r.cfg.Loader.MaxTokens)
	log.Debug().Int("documents", len(docs)).Int("chunks", len(chunks)).Msg("Chunked documents")

	log.Info().Msg("Running all documents through AI Guard...")
	guarded, err := guard.FilterChunks(ctx, r.guard, chunks)
	if err != nil {
		return nil, err
	}

	log.Info().Msg("Generating embeddings...")
	chunkEmbeddings, err := embedding.EmbedChunks(ctx, r.embedder, guarded)
	if err != nil {
		return nil, err
	}
	promptEmbedding, err := embedding.EmbedPrompt(ctx, r.embedder, prompt)
	if err != nil {
		return nil, err
	}

	top, err := r.ranker.TopK(ctx, promptEmbedding, chunkEmbeddings, r.cfg.Ranker.TopK)
	if err != nil {
		return nil, fmt.Errorf("rank chunks: %w", err)
	}
	for i, c := range top {
		log.Debug().Int("rank", i+1).Float64("score", c.Score).Int("chars", len(c.Content)).Msg("Selected chunk")
	}
	return top, nil
}

// Query retrieves the context for prompt and streams the answer to out.
func (r *RAG) Query(ctx context.Context, prompt string, out io.Writer) error {
	top, err := r.Retrieve(ctx, prompt)
	if err != nil {
		return err
	}

	messages := llmservice.BuildMessages(models.SystemPromptTemplate, BuildContext(top), prompt)
	stream, err := r.answerer.Stream(ctx, messages)
	if err != nil {
		return err
	}
	return llmservice.WriteStream(out, stream)
}

// BuildContext concatenates the chunk texts in rank order, each followed by
// the separator line.
func BuildContext(chunks []models.ScoredChunk) string {
	var context strings.Builder
	for _, c := range chunks {
		context.WriteString(c.Content)
		context.WriteString(models.ContextSeparator)
	}
	return context.String()
}
