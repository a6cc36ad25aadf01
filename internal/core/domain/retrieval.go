package domain

// Passage is a contiguous slice of a document's extracted text.
type Passage struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
	Title      string `json:"title"`
	Position   int    `json:"position"`
	Content    string `json:"content"`
}

type EmbeddedPassage struct {
	Passage
	Vector []float32 `json:"vector"`
}

type PassageMetadata struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
	Title      string `json:"title"`
	Position   int    `json:"position"`
}

type SearchHit struct {
	Content  string          `json:"content"`
	Metadata PassageMetadata `json:"metadata"`
	Score    float64         `json:"score"`
}

type QueryType string

const (
	QueryPlatform QueryType = "platform"
	QueryDocument QueryType = "document"
	QueryGeneral  QueryType = "general"
)

// KnowledgeEntry is one snippet of static knowledge about the application itself.
type KnowledgeEntry struct {
	Topic    string   `json:"topic" yaml:"topic"`
	Keywords []string `json:"keywords" yaml:"keywords"`
	Content  string   `json:"content" yaml:"content"`
}

type QueryRequest struct {
	UserID     string `json:"user_id"`
	DocumentID string `json:"document_id,omitempty"`
	Question   string `json:"question"`
	SessionID  string `json:"session_id"`
}

type Answer struct {
	Text       string      `json:"answer"`
	HasContext bool        `json:"has_context"`
	QueryType  QueryType   `json:"query_type"`
	Sources    []SearchHit `json:"sources,omitempty"`
}
