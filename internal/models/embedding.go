package models

// Document is the raw text of one source file
type Document struct {
	Source  string
	Content string
}

// Chunk represents a bounded slice of a document
type Chunk struct {
	Source  string
	Index   int
	Content string
}

// ChunkEmbedding pairs a guarded chunk's text with its vector
type ChunkEmbedding struct {
	Content   string
	Embedding []float32
}

type ScoredChunk struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}
