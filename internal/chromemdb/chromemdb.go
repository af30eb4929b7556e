package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"guarded-rag/internal/helper"
	"guarded-rag/internal/models"
	"guarded-rag/internal/ranker"
)

const (
	collectionName = "chunks"
	indexKey       = "index"
)

var errNoEmbeddingFunc = errors.New("documents must be added with precomputed embeddings")

// Ranker ranks chunks through an in-memory chromem-go collection that lives
// only for the duration of a single TopK call. Documents are added from a
// single goroutine.
type Ranker struct {
	concurrency int
}

func NewRanker() *Ranker {
	return &Ranker{concurrency: 1}
}

// TopK loads the items into a fresh collection and queries it with the
// prompt embedding. Zero-magnitude vectors are kept out of the collection and
// scored 0; ties keep their input order.
func (r *Ranker) TopK(ctx context.Context, query []float32, items []models.ChunkEmbedding, k int) ([]models.ScoredChunk, error) {
	if k <= 0 || len(items) == 0 {
		return []models.ScoredChunk{}, nil
	}
	for _, item := range items {
		if len(item.Embedding) != len(query) {
			return nil, fmt.Errorf("%w: %d vs %d", ranker.ErrDimensionMismatch, len(query), len(item.Embedding))
		}
	}

	scores := make([]float64, len(items))
	var docs []chromem.Document
	for i, item := range items {
		if ranker.IsZero(item.Embedding) {
			continue
		}
		id, err := helper.GenerateUUID()
		if err != nil {
			return nil, err
		}
		docs = append(docs, chromem.Document{
			ID:        id,
			Content:   item.Content,
			Metadata:  map[string]string{indexKey: strconv.Itoa(i)},
			Embedding: append([]float32(nil), item.Embedding...),
		})
	}

	if len(docs) > 0 && !ranker.IsZero(query) {
		results, err := r.query(ctx, query, docs)
		if err != nil {
			return nil, err
		}
		for _, res := range results {
			i, err := strconv.Atoi(res.Metadata[indexKey])
			if err != nil || i < 0 || i >= len(items) {
				return nil, fmt.Errorf("chromem result %s has invalid index %q", res.ID, res.Metadata[indexKey])
			}
			scores[i] = float64(res.Similarity)
		}
	}

	scored := make([]models.ScoredChunk, len(items))
	for i, item := range items {
		scored[i] = models.ScoredChunk{Content: item.Content, Score: scores[i]}
	}
	ranker.SortByScore(scored)
	return ranker.Truncate(scored, k), nil
}

func (r *Ranker) query(ctx context.Context, query []float32, docs []chromem.Document) ([]chromem.Result, error) {
	db := chromem.NewDB()
	collection, err := db.CreateCollection(collectionName, nil, func(context.Context, string) ([]float32, error) {
		return nil, errNoEmbeddingFunc
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	if err := collection.AddDocuments(ctx, docs, r.concurrency); err != nil {
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}
	log.Debug().Int("documents", collection.Count()).Msg("Indexed chunks in chromem collection")

	// every document is requested so zero-norm items can be merged back in order
	results, err := collection.QueryEmbedding(ctx, append([]float32(nil), query...), len(docs), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}
	return results, nil
}
