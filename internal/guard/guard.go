package guard

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"guarded-rag/internal/config"
	"guarded-rag/internal/models"
)

// Guard returns a possibly redacted version of text.
type Guard interface {
	GuardText(ctx context.Context, text string) (string, error)
}

// New builds the guard selected by cfg.Type.
func New(cfg *config.GuardConfig) (Guard, error) {
	switch cfg.Type {
	case config.GuardPangea, "":
		return NewPangeaClient(cfg)
	case config.GuardLocal:
		return NewLocalRedactor(), nil
	default:
		return nil, fmt.Errorf("unknown guard type: %s", cfg.Type)
	}
}

// FilterChunks runs every chunk through g, one call per chunk, and returns
// the guarded chunks in input order. The first failure aborts.
func FilterChunks(ctx context.Context, g Guard, chunks []models.Chunk) ([]models.Chunk, error) {
	guarded := make([]models.Chunk, len(chunks))
	for i, chunk := range chunks {
		text, err := g.GuardText(ctx, chunk.Content)
		if err != nil {
			return nil, fmt.Errorf("guard chunk %d of %s: %w", chunk.Index, chunk.Source, err)
		}
		if text != chunk.Content {
			log.Debug().Str("source", chunk.Source).Int("chunk", chunk.Index).Msg("Chunk redacted")
		}
		guarded[i] = chunk
		guarded[i].Content = text
	}
	return guarded, nil
}
