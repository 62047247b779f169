package models

import "time"

// Document is one loaded unit of source text: a whole text file or a single PDF page.
type Document struct {
	Source  string `json:"source"`
	Page    int    `json:"page"`
	Content string `json:"content"`
}

type Chunk struct {
	ID          string    `json:"id"`
	Collection  string    `json:"collection"`
	Source      string    `json:"source"`
	Page        int       `json:"page"`
	Offset      int       `json:"offset"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// Entry pairs a chunk with the embedding it was stored under.
type Entry struct {
	Chunk     Chunk     `json:"chunk"`
	Embedding []float32 `json:"-"`
}

// Collection is the header persisted alongside a named set of entries.
type Collection struct {
	Name       string    `json:"name"`
	EmbedModel string    `json:"embed_model"`
	Dim        int       `json:"dim"`
	Count      int       `json:"count"`
	CreatedAt  time.Time `json:"created_at"`
}

type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}
