package ranker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"guarded-rag/internal/models"
)

var ErrDimensionMismatch = errors.New("embedding dimensions differ")

// CosineSimilarity returns dot(a,b)/(|a|*|b|). A zero-magnitude vector has no
// direction, so its similarity to anything is 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// IsZero reports whether v has zero magnitude.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Cosine ranks chunks by exact cosine similarity against the query.
type Cosine struct{}

func NewCosine() *Cosine {
	return &Cosine{}
}

// TopK scores every item, sorts by descending score and keeps the first k.
// Ties keep their input order.
func (c *Cosine) TopK(_ context.Context, query []float32, items []models.ChunkEmbedding, k int) ([]models.ScoredChunk, error) {
	scored := make([]models.ScoredChunk, 0, len(items))
	for _, item := range items {
		score, err := CosineSimilarity(query, item.Embedding)
		if err != nil {
			return nil, err
		}
		scored = append(scored, models.ScoredChunk{Content: item.Content, Score: score})
	}
	SortByScore(scored)
	return Truncate(scored, k), nil
}

func SortByScore(scored []models.ScoredChunk) {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
}

func Truncate(scored []models.ScoredChunk, k int) []models.ScoredChunk {
	if k <= 0 {
		return []models.ScoredChunk{}
	}
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}
