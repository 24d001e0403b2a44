package domain

import "context"

// Document is the extracted plain text of one uploaded file.
type Document struct {
	Name string
	Text string
}

// Passage is a contiguous piece of ingested text, the unit of retrieval.
// ID and Seq are assigned by the index at insertion time.
type Passage struct {
	ID   string
	Seq  uint64
	Text string
}

// SearchResult represents a matching passage with a similarity score.
type SearchResult struct {
	Passage Passage
	Score   float64
}

// Turn is one question/answer exchange of a conversation.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Chunker splits text into overlapping passages in document order.
type Chunker interface {
	Chunk(text string) ([]string, error)
}

// Embedder converts free text into a numeric vector representation.
// Implementations are pure: the same text always yields the same vector.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Completer produces an answer for a grounded prompt given prior turns.
type Completer interface {
	Complete(ctx context.Context, prompt string, history []Turn) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}

// Extractor turns the raw bytes of an uploaded file into plain text.
type Extractor interface {
	Extract(name string, data []byte) (string, error)
}
