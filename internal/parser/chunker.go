package parser

import (
	"guarded-rag/internal/models"
)

// ChunkText splits text into consecutive, non-overlapping chunks of at most
// maxTokens*CharsPerToken characters. Joining the result gives back text.
func ChunkText(text string, maxTokens int) []string {
	if text == "" {
		return nil
	}
	if maxTokens <= 0 {
		return []string{text}
	}
	charLimit := maxTokens * models.CharsPerToken

	var chunks []string
	start, count := 0, 0
	// walk runes so multibyte characters are never split
	for i := range text {
		if count == charLimit {
			chunks = append(chunks, text[start:i])
			start, count = i, 0
		}
		count++
	}
	return append(chunks, text[start:])
}

// ChunkDocuments pools the chunks of every document, in document order.
func ChunkDocuments(docs []models.Document, maxTokens int) []models.Chunk {
	var chunks []models.Chunk
	for _, doc := range docs {
		for i, content := range ChunkText(doc.Content, maxTokens) {
			chunks = append(chunks, models.Chunk{
				Source:  doc.Source,
				Index:   i,
				Content: content,
			})
		}
	}
	return chunks
}
