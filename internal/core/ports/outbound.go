package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	// SaveResult writes content, analysis and status of one document atomically.
	SaveResult(ctx context.Context, id string, content string, analysis domain.Analysis, status domain.DocumentStatus, errMessage string) error
	Delete(ctx context.Context, id string) error
}

// ChatHistoryStore persists question/answer exchanges per session.
type ChatHistoryStore interface {
	AppendExchange(ctx context.Context, exchange domain.ChatExchange) error
	ListSession(ctx context.Context, userID, sessionID string, limit int) ([]domain.ChatExchange, error)
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// Notifier delivers user notifications. Callers treat failures as non-fatal.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// TextExtractor converts raw uploaded bytes into plain text.
type TextExtractor interface {
	Extract(ctx context.Context, raw []byte, mimeType, filename string) (string, error)
}

// OCREngine recognizes text in an image.
type OCREngine interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// DocumentAnalyzer produces the structured review of extracted text.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, text string) (domain.Analysis, error)
}

// Embedder builds vectors for passages and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits text into overlapping passages.
type Chunker interface {
	Split(text string) []string
}

type GenerateOptions struct {
	ContextWindow int
	Temperature   float64
	TopP          float64
	MaxTokens     int
	RepeatPenalty float64
	JSON          bool
}

// TextGenerator invokes the generation model.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// InferenceBackend exposes availability and warmup of the local model runtime.
type InferenceBackend interface {
	Ping(ctx context.Context) error
	Warmup(ctx context.Context) error
}

// VectorIndex is a nearest-neighbor store over embedded passages.
type VectorIndex interface {
	CreateFromDocuments(ctx context.Context, passages []domain.EmbeddedPassage) error
	AddDocuments(ctx context.Context, passages []domain.EmbeddedPassage) error
	RemoveDocument(ctx context.Context, documentID string) int
	SimilaritySearch(ctx context.Context, query []float32, k int) ([]domain.SearchHit, error)
	Len() int
}

// IndexRegistry owns the global index and the per-user indexes.
type IndexRegistry interface {
	Global() VectorIndex
	Lookup(userID string) (VectorIndex, bool)
	// MutateUser runs fn against the user's index (created lazily) while holding
	// that user's mutation lock. fn must not call back into the registry.
	MutateUser(ctx context.Context, userID string, fn func(VectorIndex) error) error
	Discard(ctx context.Context, userID string) error
}

// IndexSnapshotStore persists per-user index contents across restarts.
type IndexSnapshotStore interface {
	Save(userID string, passages []domain.EmbeddedPassage) error
	Load(userID string) ([]domain.EmbeddedPassage, error)
	Delete(userID string) error
	Users() ([]string, error)
}

// KnowledgeBase returns static application knowledge relevant to a question.
type KnowledgeBase interface {
	Relevant(question string, limit int) []domain.KnowledgeEntry
}

// ProcessingMetrics observes the document processing coordinator.
type ProcessingMetrics interface {
	StartDocument()
	FinishDocument(status domain.DocumentStatus, duration time.Duration)
	ObserveQueueLag(lag time.Duration)
	AdmissionDeferred(reason string)
}
