package ports

import (
	"context"
	"io"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, userID, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	Submit(ctx context.Context, documentID string)
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentQueryService answers questions about one document, the user's corpus, or the platform.
type DocumentQueryService interface {
	Ask(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error)
}

// DocumentManager is the inbound read/lifecycle model for a user's documents.
type DocumentManager interface {
	Get(ctx context.Context, userID, documentID string) (*domain.Document, error)
	List(ctx context.Context, userID string) ([]domain.Document, error)
	Reprocess(ctx context.Context, userID, documentID string) (*domain.Document, error)
	Delete(ctx context.Context, userID, documentID string) error
	EndSession(ctx context.Context, userID string) error
}

// ChatHistoryReader lists the recorded exchanges of a chat session.
type ChatHistoryReader interface {
	History(ctx context.Context, userID, sessionID string, limit int) ([]domain.ChatExchange, error)
}
