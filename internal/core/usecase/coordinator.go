package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
	"github.com/kirillkom/legal-doc-assistant/internal/core/ports"
)

type CoordinatorConfig struct {
	MinContentChars  int
	AdmissionBackoff time.Duration
	ProcessTimeout   time.Duration
}

type CoordinatorDeps struct {
	Repo      ports.DocumentRepository
	Storage   ports.ObjectStorage
	Extractor ports.TextExtractor
	Analyzer  ports.DocumentAnalyzer
	Chunker   ports.Chunker
	Embedder  ports.Embedder
	Indexes   ports.IndexRegistry
	Backend   ports.InferenceBackend
	Notifier  ports.Notifier
	Admission *Admission
	Metrics   ports.ProcessingMetrics
	Logger    *slog.Logger
}

// Coordinator runs extraction, analysis and indexing for uploaded documents
// under the admission caps and records the terminal status.
type Coordinator struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	extractor ports.TextExtractor
	analyzer  ports.DocumentAnalyzer
	chunker   ports.Chunker
	embedder  ports.Embedder
	indexes   ports.IndexRegistry
	backend   ports.InferenceBackend
	notifier  ports.Notifier
	admission *Admission
	metrics   ports.ProcessingMetrics
	logger    *slog.Logger
	cfg       CoordinatorConfig

	wg       sync.WaitGroup
	inFlight sync.Map
}

func NewCoordinator(deps CoordinatorDeps, cfg CoordinatorConfig) *Coordinator {
	if cfg.MinContentChars <= 0 {
		cfg.MinContentChars = 50
	}
	if cfg.AdmissionBackoff <= 0 {
		cfg.AdmissionBackoff = 2 * time.Second
	}
	if deps.Admission == nil {
		deps.Admission = NewAdmission(0, 0)
	}
	if deps.Metrics == nil {
		deps.Metrics = noopProcessingMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Coordinator{
		repo:      deps.Repo,
		storage:   deps.Storage,
		extractor: deps.Extractor,
		analyzer:  deps.Analyzer,
		chunker:   deps.Chunker,
		embedder:  deps.Embedder,
		indexes:   deps.Indexes,
		backend:   deps.Backend,
		notifier:  deps.Notifier,
		admission: deps.Admission,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		cfg:       cfg,
	}
}

// Submit processes the document in the background. The job outlives the
// caller's context but keeps its values.
func (c *Coordinator) Submit(ctx context.Context, documentID string) {
	jobCtx := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.ProcessByID(jobCtx, documentID); err != nil {
			c.logger.Error("document_processing_error", "document_id", documentID, "error", err)
		}
	}()
}

// Wait blocks until every submitted job has finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// ProcessByID runs one document to a terminal state. Pipeline failures are
// recorded on the document and do not surface as errors; the returned error
// only reports failures to load or persist the document itself.
// ProcessTimeout bounds the work after admission; waiting for a slot is
// bounded only by ctx.
func (c *Coordinator) ProcessByID(ctx context.Context, documentID string) error {
	if _, busy := c.inFlight.LoadOrStore(documentID, struct{}{}); busy {
		c.logger.Info("document_already_processing", "document_id", documentID)
		return nil
	}
	defer c.inFlight.Delete(documentID)

	doc, err := c.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	logger := c.logger.With("document_id", doc.ID, "user_id", doc.UserID)

	if doc.Status.IsTerminal() {
		logger.Info("document_already_terminal", "status", doc.Status)
		return nil
	}
	if doc.Status != domain.StatusProcessing {
		if err := c.repo.UpdateStatus(ctx, doc.ID, domain.StatusProcessing, ""); err != nil {
			return fmt.Errorf("set status=processing: %w", err)
		}
	}

	if err := c.admit(ctx, logger, doc.UserID); err != nil {
		return c.fail(ctx, logger, doc, "", err)
	}
	defer c.admission.Release(doc.UserID)

	if c.cfg.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ProcessTimeout)
		defer cancel()
	}

	started := time.Now()
	if !doc.CreatedAt.IsZero() {
		c.metrics.ObserveQueueLag(started.Sub(doc.CreatedAt))
	}
	c.metrics.StartDocument()
	logger.Info("document_processing_started", "filename", doc.Filename, "mime_type", doc.MimeType)

	text, analysis, err := c.run(ctx, logger, doc)
	if err != nil {
		c.metrics.FinishDocument(domain.StatusFailed, time.Since(started))
		return c.fail(ctx, logger, doc, text, err)
	}

	persistCtx, cancel := detached(ctx)
	defer cancel()
	if err := c.repo.SaveResult(persistCtx, doc.ID, text, analysis, domain.StatusCompleted, ""); err != nil {
		c.metrics.FinishDocument(domain.StatusFailed, time.Since(started))
		c.dropPassages(persistCtx, logger, doc)
		return c.fail(persistCtx, logger, doc, "", fmt.Errorf("save document result: %w", err))
	}
	c.metrics.FinishDocument(domain.StatusCompleted, time.Since(started))
	logger.Info("document_processing_completed", "duration_ms", time.Since(started).Milliseconds(), "chars", utf8.RuneCountInString(text))

	c.notify(persistCtx, logger, domain.Notification{
		UserID:  doc.UserID,
		Title:   "Document ready",
		Message: fmt.Sprintf("%s has been analyzed and is ready for questions.", doc.Filename),
		Type:    domain.NotificationSuccess,
	})
	return nil
}

// admit polls the inference backend and the admission caps until a slot is
// free or ctx ends.
func (c *Coordinator) admit(ctx context.Context, logger *slog.Logger, userID string) error {
	for {
		reason := DeferBackend
		if c.backend == nil || c.backend.Ping(ctx) == nil {
			ok, capReason := c.admission.TryAcquire(userID)
			if ok {
				return nil
			}
			reason = capReason
		}

		c.metrics.AdmissionDeferred(reason)
		logger.Info("admission_deferred", "reason", reason, "backoff_ms", c.cfg.AdmissionBackoff.Milliseconds())

		timer := time.NewTimer(c.cfg.AdmissionBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.WrapError(domain.ErrAdmissionDeferred, "admit document", fmt.Errorf("%s: %w", reason, ctx.Err()))
		case <-timer.C:
		}
	}
}

func (c *Coordinator) run(ctx context.Context, logger *slog.Logger, doc *domain.Document) (string, domain.Analysis, error) {
	raw, err := c.load(ctx, doc)
	if err != nil {
		return "", domain.Analysis{}, err
	}

	warmed := make(chan struct{})
	go func() {
		defer close(warmed)
		if c.backend == nil {
			return
		}
		if err := c.backend.Warmup(ctx); err != nil {
			logger.Warn("model_warmup_failed", "error", err)
		}
	}()
	text, err := c.extractor.Extract(ctx, raw, doc.MimeType, doc.Filename)
	<-warmed
	if err != nil {
		return "", domain.Analysis{}, fmt.Errorf("extract text: %w", err)
	}

	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n < c.cfg.MinContentChars {
		return text, domain.Analysis{}, domain.WrapError(
			domain.ErrInsufficientContent,
			"extract text",
			fmt.Errorf("extracted %d characters, need at least %d", n, c.cfg.MinContentChars),
		)
	}

	var (
		wg          sync.WaitGroup
		analysis    domain.Analysis
		analysisErr error
		indexErr    error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		analysis, analysisErr = c.analyzer.Analyze(ctx, text)
	}()
	go func() {
		defer wg.Done()
		indexErr = c.index(ctx, doc, text)
	}()
	wg.Wait()

	if analysisErr != nil {
		if indexErr == nil {
			c.dropPassages(ctx, logger, doc)
		}
		return text, domain.Analysis{}, fmt.Errorf("analyze document: %w", analysisErr)
	}
	if indexErr != nil {
		return text, domain.Analysis{}, indexErr
	}
	if analysis.ParseFallback {
		logger.Warn("analysis_parse_fallback")
	}
	return text, analysis, nil
}

func (c *Coordinator) load(ctx context.Context, doc *domain.Document) ([]byte, error) {
	reader, err := c.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read source document: %w", err)
	}
	return raw, nil
}

// index embeds the passages outside any lock and then swaps the document's
// passages in the user's index.
func (c *Coordinator) index(ctx context.Context, doc *domain.Document, text string) error {
	passages, err := EmbedPassages(ctx, c.chunker, c.embedder, doc, text)
	if err != nil {
		return err
	}
	err = c.indexes.MutateUser(ctx, doc.UserID, func(idx ports.VectorIndex) error {
		idx.RemoveDocument(ctx, doc.ID)
		return idx.AddDocuments(ctx, passages)
	})
	if err != nil {
		return fmt.Errorf("index passages: %w", err)
	}
	return nil
}

// EmbedPassages splits text and embeds every passage in one batch. Any
// failure fails the whole batch.
func EmbedPassages(ctx context.Context, chunker ports.Chunker, embedder ports.Embedder, doc *domain.Document, text string) ([]domain.EmbeddedPassage, error) {
	chunks := chunker.Split(text)
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrEmbedding, "chunk document", errors.New("chunking produced zero passages"))
	}
	vectors, err := embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed passages", err)
	}
	if len(vectors) != len(chunks) {
		return nil, domain.WrapError(
			domain.ErrEmbedding,
			"embed passages",
			fmt.Errorf("vectors/passages mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}

	out := make([]domain.EmbeddedPassage, len(chunks))
	for i, chunk := range chunks {
		out[i] = domain.EmbeddedPassage{
			Passage: domain.Passage{
				ID:         uuid.NewString(),
				DocumentID: doc.ID,
				UserID:     doc.UserID,
				Title:      doc.Filename,
				Position:   i,
				Content:    chunk,
			},
			Vector: vectors[i],
		}
	}
	return out, nil
}

func (c *Coordinator) fail(ctx context.Context, logger *slog.Logger, doc *domain.Document, text string, cause error) error {
	message := FailureMessage(cause)
	logger.Error("document_processing_failed", "error", cause)

	persistCtx, cancel := detached(ctx)
	defer cancel()
	if err := c.repo.SaveResult(persistCtx, doc.ID, text, domain.FailedAnalysis(message), domain.StatusFailed, message); err != nil {
		return fmt.Errorf("%w; mark failed status: %v", cause, err)
	}
	c.notify(persistCtx, logger, domain.Notification{
		UserID:  doc.UserID,
		Title:   "Document processing failed",
		Message: fmt.Sprintf("%s: %s", doc.Filename, message),
		Type:    domain.NotificationError,
	})
	return nil
}

func (c *Coordinator) dropPassages(ctx context.Context, logger *slog.Logger, doc *domain.Document) {
	if _, ok := c.indexes.Lookup(doc.UserID); !ok {
		return
	}
	err := c.indexes.MutateUser(ctx, doc.UserID, func(idx ports.VectorIndex) error {
		idx.RemoveDocument(ctx, doc.ID)
		return nil
	})
	if err != nil {
		logger.Warn("drop_passages_failed", "error", err)
	}
}

func (c *Coordinator) notify(ctx context.Context, logger *slog.Logger, n domain.Notification) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, n); err != nil {
		logger.Warn("notification_failed", "error", err)
	}
}

// FailureMessage is the user-facing text stored on a failed document.
func FailureMessage(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInsufficientContent):
		return "The document contains too little readable text to analyze."
	case domain.IsKind(err, domain.ErrUnsupportedMediaType):
		return "This file type is not supported."
	case domain.IsKind(err, domain.ErrOCR):
		return "Text recognition failed for this image."
	case domain.IsKind(err, domain.ErrExtraction):
		return "The document text could not be read. The file may be damaged or protected."
	case domain.IsKind(err, domain.ErrEmbedding):
		return "The document could not be indexed for search."
	case domain.IsKind(err, domain.ErrAdmissionDeferred):
		return "Processing did not start in time. Please reprocess the document."
	case errors.Is(err, context.DeadlineExceeded):
		return "Processing took too long and was stopped."
	default:
		return "Processing failed: " + err.Error()
	}
}

// detached keeps ctx values but survives its cancellation so terminal state
// can still be recorded after a timeout.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
}

type noopProcessingMetrics struct{}

func (noopProcessingMetrics) StartDocument() {}

func (noopProcessingMetrics) FinishDocument(domain.DocumentStatus, time.Duration) {}

func (noopProcessingMetrics) ObserveQueueLag(time.Duration) {}

func (noopProcessingMetrics) AdmissionDeferred(string) {}
