package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
	"github.com/kirillkom/legal-doc-assistant/internal/core/ports"
)

// DocumentService is the read and lifecycle side of a user's documents.
type DocumentService struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	indexes   ports.IndexRegistry
	processor ports.DocumentProcessor
	logger    *slog.Logger
}

func NewDocumentService(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	indexes ports.IndexRegistry,
	processor ports.DocumentProcessor,
	logger *slog.Logger,
) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{
		repo:      repo,
		storage:   storage,
		indexes:   indexes,
		processor: processor,
		logger:    logger,
	}
}

// Get hides documents of other users behind ErrDocumentNotFound.
func (s *DocumentService) Get(ctx context.Context, userID, documentID string) (*domain.Document, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "get document", errors.New("user id is required"))
	}
	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("document %s", documentID))
	}
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, userID string) ([]domain.Document, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "list documents", errors.New("user id is required"))
	}
	return s.repo.ListByUser(ctx, userID)
}

// Reprocess re-enters a completed or failed document into the pipeline.
func (s *DocumentService) Reprocess(ctx context.Context, userID, documentID string) (*domain.Document, error) {
	doc, err := s.Get(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.Status.IsTerminal() {
		return nil, domain.WrapError(domain.ErrDocumentNotReady, "reprocess document", fmt.Errorf("document is %s", doc.Status))
	}

	s.removePassages(ctx, doc)
	if err := s.repo.UpdateStatus(ctx, doc.ID, domain.StatusProcessing, ""); err != nil {
		return nil, fmt.Errorf("set status=processing: %w", err)
	}
	doc.Status = domain.StatusProcessing
	doc.Error = ""
	s.processor.Submit(ctx, doc.ID)
	return doc, nil
}

// Delete removes the document with its passages, stored bytes and chat history.
func (s *DocumentService) Delete(ctx context.Context, userID, documentID string) error {
	doc, err := s.Get(ctx, userID, documentID)
	if err != nil {
		return err
	}
	if !doc.Status.IsTerminal() {
		return domain.WrapError(domain.ErrDocumentNotReady, "delete document", fmt.Errorf("document is %s", doc.Status))
	}

	s.removePassages(ctx, doc)
	if err := s.repo.Delete(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete document record: %w", err)
	}
	if err := s.storage.Delete(ctx, doc.StoragePath); err != nil {
		s.logger.Warn("storage_delete_failed", "document_id", doc.ID, "error", err)
	}
	return nil
}

// EndSession drops the user's in-memory index, typically on logout.
func (s *DocumentService) EndSession(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return domain.WrapError(domain.ErrUnauthorized, "end session", errors.New("user id is required"))
	}
	return s.indexes.Discard(ctx, userID)
}

func (s *DocumentService) removePassages(ctx context.Context, doc *domain.Document) {
	if _, ok := s.indexes.Lookup(doc.UserID); !ok {
		return
	}
	err := s.indexes.MutateUser(ctx, doc.UserID, func(idx ports.VectorIndex) error {
		removed := idx.RemoveDocument(ctx, doc.ID)
		s.logger.Info("document_passages_removed", "document_id", doc.ID, "count", removed)
		return nil
	})
	if err != nil {
		s.logger.Warn("remove_passages_failed", "document_id", doc.ID, "error", err)
	}
}
