package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
	"github.com/kirillkom/legal-doc-assistant/internal/core/ports"
)

type QueryConfig struct {
	TopK                 int
	DocumentContextChars int
}

// QueryUseCase answers questions about one document, the caller's corpus or the platform.
type QueryUseCase struct {
	repo     ports.DocumentRepository
	indexes  ports.IndexRegistry
	chunker  ports.Chunker
	embedder ports.Embedder
	composer *AnswerComposer
	history  ports.ChatHistoryStore
	logger   *slog.Logger
	cfg      QueryConfig

	// globalMu serializes rebuild+search of the shared single-document index.
	globalMu sync.Mutex
}

func NewQueryUseCase(
	repo ports.DocumentRepository,
	indexes ports.IndexRegistry,
	chunker ports.Chunker,
	embedder ports.Embedder,
	composer *AnswerComposer,
	history ports.ChatHistoryStore,
	logger *slog.Logger,
	cfg QueryConfig,
) *QueryUseCase {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.DocumentContextChars <= 0 {
		cfg.DocumentContextChars = 12000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryUseCase{
		repo:     repo,
		indexes:  indexes,
		chunker:  chunker,
		embedder: embedder,
		composer: composer,
		history:  history,
		logger:   logger,
		cfg:      cfg,
	}
}

func (uc *QueryUseCase) Ask(ctx context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "ask", errors.New("user id is required"))
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("question is required"))
	}

	input := ComposeInput{UserID: req.UserID, Question: question}
	greeting := IsGreeting(question)
	switch {
	case req.DocumentID != "":
		// Readiness is checked even for greetings.
		doc, err := uc.readyDocument(ctx, req.UserID, req.DocumentID)
		if err != nil {
			return nil, err
		}
		if greeting {
			break
		}
		contextText, sources, err := uc.documentContext(ctx, doc, question)
		if err != nil {
			return nil, err
		}
		input.Context = contextText
		input.Title = doc.Filename
		input.Sources = sources
	case !greeting && ClassifyQueryIntent(question) != domain.QueryPlatform:
		uc.ensureUserIndex(ctx, req.UserID)
	}

	answer, err := uc.composer.Compose(ctx, input)
	if err != nil {
		return nil, err
	}
	uc.record(ctx, req, answer)
	return answer, nil
}

func (uc *QueryUseCase) readyDocument(ctx context.Context, userID, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.UserID != userID {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "ask", fmt.Errorf("document %s", documentID))
	}
	if doc.Status != domain.StatusCompleted {
		return nil, domain.WrapError(domain.ErrDocumentNotReady, "ask", fmt.Errorf("document %s is %s", documentID, doc.Status))
	}
	return doc, nil
}

// documentContext uses the whole text when it fits the budget. Larger documents
// are embedded into the shared global index and only the best passages are used.
func (uc *QueryUseCase) documentContext(ctx context.Context, doc *domain.Document, question string) (string, []domain.SearchHit, error) {
	content := strings.TrimSpace(doc.Content)
	if utf8.RuneCountInString(content) <= uc.cfg.DocumentContextChars {
		return content, nil, nil
	}

	passages, err := EmbedPassages(ctx, uc.chunker, uc.embedder, doc, content)
	if err != nil {
		return "", nil, err
	}
	queryVector, err := uc.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return "", nil, domain.WrapError(domain.ErrEmbedding, "embed query", err)
	}

	uc.globalMu.Lock()
	defer uc.globalMu.Unlock()
	global := uc.indexes.Global()
	if err := global.CreateFromDocuments(ctx, passages); err != nil {
		return "", nil, fmt.Errorf("rebuild document index: %w", err)
	}
	hits, err := global.SimilaritySearch(ctx, queryVector, uc.cfg.TopK)
	if err != nil {
		return "", nil, fmt.Errorf("search document index: %w", err)
	}
	return joinHits(hits), hits, nil
}

// ensureUserIndex rebuilds a missing user index from the user's completed
// documents, e.g. after a session ended or a restart without snapshot.
func (uc *QueryUseCase) ensureUserIndex(ctx context.Context, userID string) {
	if _, ok := uc.indexes.Lookup(userID); ok {
		return
	}
	docs, err := uc.repo.ListByUser(ctx, userID)
	if err != nil {
		uc.logger.Warn("user_index_rebuild_failed", "user_id", userID, "error", err)
		return
	}

	rebuilt := 0
	for i := range docs {
		doc := &docs[i]
		if doc.Status != domain.StatusCompleted || strings.TrimSpace(doc.Content) == "" {
			continue
		}
		passages, err := EmbedPassages(ctx, uc.chunker, uc.embedder, doc, doc.Content)
		if err != nil {
			uc.logger.Warn("user_index_rebuild_failed", "user_id", userID, "document_id", doc.ID, "error", err)
			continue
		}
		err = uc.indexes.MutateUser(ctx, userID, func(idx ports.VectorIndex) error {
			idx.RemoveDocument(ctx, doc.ID)
			return idx.AddDocuments(ctx, passages)
		})
		if err != nil {
			uc.logger.Warn("user_index_rebuild_failed", "user_id", userID, "document_id", doc.ID, "error", err)
			continue
		}
		rebuilt++
	}
	if rebuilt > 0 {
		uc.logger.Info("user_index_rebuilt", "user_id", userID, "documents", rebuilt)
	}
}

func (uc *QueryUseCase) record(ctx context.Context, req domain.QueryRequest, answer *domain.Answer) {
	if uc.history == nil {
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = "default"
	}
	exchange := domain.ChatExchange{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		SessionID:  sessionID,
		DocumentID: req.DocumentID,
		Question:   req.Question,
		Answer:     answer.Text,
		QueryType:  answer.QueryType,
		CreatedAt:  time.Now().UTC(),
	}
	if err := uc.history.AppendExchange(ctx, exchange); err != nil {
		uc.logger.Warn("chat_history_append_failed", "user_id", req.UserID, "error", err)
	}
}

// History returns the recorded exchanges of one session, oldest first.
func (uc *QueryUseCase) History(ctx context.Context, userID, sessionID string, limit int) ([]domain.ChatExchange, error) {
	if uc.history == nil {
		return []domain.ChatExchange{}, nil
	}
	if strings.TrimSpace(userID) == "" {
		return nil, domain.WrapError(domain.ErrUnauthorized, "chat history", errors.New("user id is required"))
	}
	if strings.TrimSpace(sessionID) == "" {
		sessionID = "default"
	}
	return uc.history.ListSession(ctx, userID, sessionID, limit)
}
