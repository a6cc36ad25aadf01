package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
	"github.com/kirillkom/legal-doc-assistant/internal/core/ports"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/chunking"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/extractor"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/extractor/ocr"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/vector/memory"
)

const (
	rentText   = "The tenant shall pay a monthly rent of $1800 on the first day of each month under this lease."
	salaryText = "The employee will receive an annual salary of $95000 paid in twelve equal installments each year."
)

type pipeline struct {
	repo      *memRepo
	storage   *memStorage
	extractor *textExtractorFake
	analyzer  *analyzerFake
	embedder  *keywordEmbedder
	generator *generatorFake
	backend   *backendFake
	notifier  *notifierFake
	metrics   *metricsFake
	indexes   *memory.Registry
	admission *Admission
}

func newPipeline() *pipeline {
	return &pipeline{
		repo:      newMemRepo(),
		storage:   newMemStorage(),
		extractor: &textExtractorFake{},
		analyzer: &analyzerFake{analysis: domain.Analysis{
			DocumentType: "lease",
			KeyTerms:     []string{"rent"},
			RiskLevel:    "low",
			Summary:      "Residential lease.",
		}},
		embedder:  newKeywordEmbedder("rent", "salary", "deposit"),
		generator: &generatorFake{response: "generated answer"},
		backend:   &backendFake{},
		notifier:  &notifierFake{},
		metrics:   newMetricsFake(),
		indexes:   memory.NewRegistry(nil, discardLogger()),
		admission: NewAdmission(3, 10),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (p *pipeline) coordinator(cfg CoordinatorConfig) *Coordinator {
	return p.coordinatorWith(p.extractor, cfg)
}

func (p *pipeline) coordinatorWith(ex ports.TextExtractor, cfg CoordinatorConfig) *Coordinator {
	if cfg.AdmissionBackoff == 0 {
		cfg.AdmissionBackoff = 5 * time.Millisecond
	}
	return NewCoordinator(CoordinatorDeps{
		Repo:      p.repo,
		Storage:   p.storage,
		Extractor: ex,
		Analyzer:  p.analyzer,
		Chunker:   chunking.NewSplitter(200, 40),
		Embedder:  p.embedder,
		Indexes:   p.indexes,
		Backend:   p.backend,
		Notifier:  p.notifier,
		Admission: p.admission,
		Metrics:   p.metrics,
		Logger:    discardLogger(),
	}, cfg)
}

func (p *pipeline) query(cfg QueryConfig) *QueryUseCase {
	composer := NewAnswerComposer(p.generator, knowledgeFake{}, p.indexes, p.embedder, discardLogger(), ComposerConfig{TopK: 3, MinScore: 0.3})
	return NewQueryUseCase(p.repo, p.indexes, chunking.NewSplitter(200, 40), p.embedder, composer, &historyFake{}, discardLogger(), cfg)
}

// seed stores body and registers a pending document for userID.
func (p *pipeline) seed(t *testing.T, id, userID, filename, mimeType, body string) {
	t.Helper()
	key := id + "_" + filename
	if err := p.storage.Save(context.Background(), key, strings.NewReader(body)); err != nil {
		t.Fatalf("seed storage: %v", err)
	}
	err := p.repo.Create(context.Background(), &domain.Document{
		ID:          id,
		UserID:      userID,
		Filename:    filename,
		MimeType:    mimeType,
		SizeBytes:   int64(len(body)),
		StoragePath: key,
		Status:      domain.StatusPending,
	})
	if err != nil {
		t.Fatalf("seed repo: %v", err)
	}
}

func TestCoordinatorProcessesDocumentToCompleted(t *testing.T) {
	p := newPipeline()
	p.seed(t, "doc-1", "alice", "lease.pdf", "application/pdf", rentText)

	if err := p.coordinator(CoordinatorConfig{}).ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID returned error: %v", err)
	}

	doc := p.repo.doc("doc-1")
	if doc.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", doc.Status, doc.Error)
	}
	if doc.Content != rentText {
		t.Fatalf("unexpected content %q", doc.Content)
	}
	if doc.Analysis == nil || doc.Analysis.DocumentType != "lease" {
		t.Fatalf("expected analysis to be stored, got %+v", doc.Analysis)
	}
	trail := p.repo.statusTrail("doc-1")
	if len(trail) != 2 || trail[0] != domain.StatusProcessing || trail[1] != domain.StatusCompleted {
		t.Fatalf("unexpected status trail %v", trail)
	}

	idx, ok := p.indexes.Lookup("alice")
	if !ok || idx.Len() == 0 {
		t.Fatalf("expected passages in alice's index")
	}
	if got := p.notifier.last(); got.Type != domain.NotificationSuccess || got.UserID != "alice" {
		t.Fatalf("unexpected notification %+v", got)
	}
	if p.backend.warmups != 1 {
		t.Fatalf("expected one warmup, got %d", p.backend.warmups)
	}
	if p.metrics.started != 1 || p.metrics.finished[domain.StatusCompleted] != 1 {
		t.Fatalf("unexpected metrics %+v", p.metrics)
	}
	if got := p.admission.ActiveGlobal(); got != 0 {
		t.Fatalf("expected admission slot to be released, got %d active", got)
	}
}

func TestCoordinatorFailsOnInsufficientContent(t *testing.T) {
	p := newPipeline()
	p.seed(t, "doc-1", "alice", "note.txt", "text/plain", "0123456789")

	if err := p.coordinator(CoordinatorConfig{}).ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("pipeline failures must be recorded, not returned: %v", err)
	}

	doc := p.repo.doc("doc-1")
	if doc.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", doc.Status)
	}
	want := FailureMessage(domain.ErrInsufficientContent)
	if doc.Error != want {
		t.Fatalf("expected error %q, got %q", want, doc.Error)
	}
	if doc.Analysis == nil || doc.Analysis.Error != want {
		t.Fatalf("expected failed analysis payload, got %+v", doc.Analysis)
	}
	if p.analyzer.callCount() != 0 {
		t.Fatalf("analyzer must not run on insufficient content")
	}
	if _, ok := p.indexes.Lookup("alice"); ok {
		t.Fatalf("no index should be created for a failed document")
	}
	if got := p.notifier.last(); got.Type != domain.NotificationError {
		t.Fatalf("expected error notification, got %+v", got)
	}
}

func TestCoordinatorFailsUnreadableImageWithoutModelCall(t *testing.T) {
	p := newPipeline()
	p.seed(t, "doc-1", "alice", "scan.png", "image/png", "fake-png-bytes")

	router := extractor.NewRouter(pdf.NewExtractor(), ocr.NewEnhancer(staticOCR{text: "~ ."}, p.generator, discardLogger()))
	if err := p.coordinatorWith(router, CoordinatorConfig{}).ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID returned error: %v", err)
	}

	doc := p.repo.doc("doc-1")
	if doc.Status != domain.StatusFailed || doc.Error != FailureMessage(domain.ErrInsufficientContent) {
		t.Fatalf("expected insufficient content failure, got %s %q", doc.Status, doc.Error)
	}
	if p.generator.calls() != 0 {
		t.Fatalf("near-empty OCR must not call the model")
	}
}

type staticOCR struct {
	text string
	err  error
}

func (s staticOCR) Recognize(context.Context, []byte) (string, error) {
	return s.text, s.err
}

func TestCoordinatorMarksCorruptPDFAsExtractionFailure(t *testing.T) {
	p := newPipeline()
	p.seed(t, "doc-1", "alice", "broken.pdf", "application/pdf", "definitely not a pdf")

	router := extractor.NewRouter(pdf.NewExtractor(), ocr.NewEnhancer(staticOCR{}, p.generator, discardLogger()))
	if err := p.coordinatorWith(router, CoordinatorConfig{}).ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID returned error: %v", err)
	}

	doc := p.repo.doc("doc-1")
	if doc.Status != domain.StatusFailed || doc.Error != FailureMessage(domain.ErrExtraction) {
		t.Fatalf("expected extraction failure, got %s %q", doc.Status, doc.Error)
	}
}

func TestCoordinatorEmbeddingFailureLeavesNoPassages(t *testing.T) {
	p := newPipeline()
	p.embedder.err = errors.New("embedding model unavailable")
	p.seed(t, "doc-1", "alice", "lease.txt", "text/plain", rentText)

	if err := p.coordinator(CoordinatorConfig{}).ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID returned error: %v", err)
	}

	doc := p.repo.doc("doc-1")
	if doc.Status != domain.StatusFailed || doc.Error != FailureMessage(domain.ErrEmbedding) {
		t.Fatalf("expected embedding failure, got %s %q", doc.Status, doc.Error)
	}
	if idx, ok := p.indexes.Lookup("alice"); ok && idx.Len() != 0 {
		t.Fatalf("expected no passages after embedding failure, got %d", idx.Len())
	}
}

func TestCoordinatorAnalysisFailureDropsIndexedPassages(t *testing.T) {
	p := newPipeline()
	p.analyzer.err = errors.New("model crashed")
	p.seed(t, "doc-1", "alice", "lease.txt", "text/plain", rentText)

	if err := p.coordinator(CoordinatorConfig{}).ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID returned error: %v", err)
	}

	if doc := p.repo.doc("doc-1"); doc.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", doc.Status)
	}
	if idx, ok := p.indexes.Lookup("alice"); ok && idx.Len() != 0 {
		t.Fatalf("expected passages of failed document to be dropped, got %d", idx.Len())
	}
}

func TestCoordinatorSkipsTerminalDocuments(t *testing.T) {
	p := newPipeline()
	p.seed(t, "doc-1", "alice", "lease.txt", "text/plain", rentText)
	if err := p.repo.UpdateStatus(context.Background(), "doc-1", domain.StatusCompleted, ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	if err := p.coordinator(CoordinatorConfig{}).ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID returned error: %v", err)
	}
	if p.extractor.calls != 0 {
		t.Fatalf("terminal document must not be reprocessed")
	}
}

func TestCoordinatorWaitsForBackend(t *testing.T) {
	p := newPipeline()
	p.backend.failPings = 2
	p.seed(t, "doc-1", "alice", "lease.txt", "text/plain", rentText)

	if err := p.coordinator(CoordinatorConfig{}).ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID returned error: %v", err)
	}

	if doc := p.repo.doc("doc-1"); doc.Status != domain.StatusCompleted {
		t.Fatalf("expected completed once the backend is back, got %s", doc.Status)
	}
	if got := p.metrics.deferred[DeferBackend]; got != 2 {
		t.Fatalf("expected 2 backend deferrals, got %d", got)
	}
}

func TestCoordinatorAdmissionTimesOut(t *testing.T) {
	p := newPipeline()
	p.backend.failPings = 1 << 20
	p.seed(t, "doc-1", "alice", "lease.txt", "text/plain", rentText)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := p.coordinator(CoordinatorConfig{}).ProcessByID(ctx, "doc-1"); err != nil {
		t.Fatalf("ProcessByID returned error: %v", err)
	}

	doc := p.repo.doc("doc-1")
	if doc.Status != domain.StatusFailed || doc.Error != FailureMessage(domain.ErrAdmissionDeferred) {
		t.Fatalf("expected admission failure, got %s %q", doc.Status, doc.Error)
	}
	if p.extractor.calls != 0 {
		t.Fatalf("extraction must not start without admission")
	}
}

func TestCoordinatorProcessTimeoutStartsAfterAdmission(t *testing.T) {
	p := newPipeline()
	p.backend.failPings = 10
	p.seed(t, "doc-1", "alice", "lease.txt", "text/plain", rentText)
	coordinator := p.coordinator(CoordinatorConfig{ProcessTimeout: 25 * time.Millisecond})

	coordinator.Submit(context.Background(), "doc-1")
	coordinator.Wait()

	if doc := p.repo.doc("doc-1"); doc.Status != domain.StatusCompleted {
		t.Fatalf("expected completed after a long admission wait, got %s (%s)", doc.Status, doc.Error)
	}
	if got := p.metrics.deferred[DeferBackend]; got != 10 {
		t.Fatalf("expected 10 backend deferrals, got %d", got)
	}
}

func TestCoordinatorProcessTimeoutFailsSlowJob(t *testing.T) {
	p := newPipeline()
	p.extractor.delay = 200 * time.Millisecond
	p.seed(t, "doc-1", "alice", "lease.txt", "text/plain", rentText)

	err := p.coordinator(CoordinatorConfig{ProcessTimeout: 20 * time.Millisecond}).ProcessByID(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("ProcessByID returned error: %v", err)
	}
	if doc := p.repo.doc("doc-1"); doc.Status != domain.StatusFailed {
		t.Fatalf("expected failed after timeout, got %s", doc.Status)
	}
}

// completedSaveFailsRepo rejects only the final completed write.
type completedSaveFailsRepo struct {
	*memRepo
}

func (r completedSaveFailsRepo) SaveResult(ctx context.Context, id, content string, analysis domain.Analysis, status domain.DocumentStatus, errMessage string) error {
	if status == domain.StatusCompleted {
		return errors.New("invalid byte sequence for encoding UTF8")
	}
	return r.memRepo.SaveResult(ctx, id, content, analysis, status, errMessage)
}

func TestCoordinatorMarksFailedWhenCompletedSaveFails(t *testing.T) {
	p := newPipeline()
	p.seed(t, "doc-1", "alice", "lease.txt", "text/plain", rentText)
	coordinator := p.coordinator(CoordinatorConfig{})
	coordinator.repo = completedSaveFailsRepo{p.repo}

	if err := coordinator.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessByID returned error: %v", err)
	}

	doc := p.repo.doc("doc-1")
	if doc.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", doc.Status)
	}
	if !strings.Contains(doc.Error, "save document result") {
		t.Fatalf("unexpected error message %q", doc.Error)
	}
	if got := p.notifier.last(); got.Type != domain.NotificationError {
		t.Fatalf("expected failure notification, got %+v", got)
	}
	if idx, ok := p.indexes.Lookup("alice"); ok && idx.Len() != 0 {
		t.Fatalf("expected passages to be dropped, got %d", idx.Len())
	}
	if p.metrics.finished[domain.StatusFailed] != 1 {
		t.Fatalf("expected failed metric, got %+v", p.metrics.finished)
	}
}

func TestCoordinatorRespectsPerUserCap(t *testing.T) {
	p := newPipeline()
	p.extractor.delay = 20 * time.Millisecond
	coordinator := p.coordinator(CoordinatorConfig{})

	const maxPerUser = 3
	ids := make([]string, 0, maxPerUser+2)
	for i := 0; i < maxPerUser+2; i++ {
		id := fmt.Sprintf("doc-%d", i)
		p.seed(t, id, "alice", id+".txt", "text/plain", rentText)
		ids = append(ids, id)
	}

	for _, id := range ids {
		coordinator.Submit(context.Background(), id)
	}
	coordinator.Wait()

	if peak := p.extractor.peakActive(); peak > maxPerUser {
		t.Fatalf("expected at most %d concurrent jobs for one user, got %d", maxPerUser, peak)
	}
	for _, id := range ids {
		if doc := p.repo.doc(id); doc.Status != domain.StatusCompleted {
			t.Fatalf("expected %s to complete, got %s (%s)", id, doc.Status, doc.Error)
		}
	}
	if p.metrics.deferred[DeferUserCap] == 0 {
		t.Fatalf("expected user cap deferrals to be recorded")
	}
	if got := p.admission.ActiveGlobal(); got != 0 {
		t.Fatalf("expected all slots released, got %d", got)
	}
}

func TestCoordinatorIgnoresDuplicateDelivery(t *testing.T) {
	p := newPipeline()
	p.extractor.delay = 20 * time.Millisecond
	p.seed(t, "doc-1", "alice", "lease.txt", "text/plain", rentText)
	coordinator := p.coordinator(CoordinatorConfig{})

	coordinator.Submit(context.Background(), "doc-1")
	coordinator.Submit(context.Background(), "doc-1")
	coordinator.Wait()

	if p.extractor.calls != 1 {
		t.Fatalf("expected one extraction, got %d", p.extractor.calls)
	}
	if doc := p.repo.doc("doc-1"); doc.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", doc.Status)
	}
}

func TestFailureMessageForTimeout(t *testing.T) {
	got := FailureMessage(fmt.Errorf("extract text: %w", context.DeadlineExceeded))
	if !strings.Contains(got, "too long") {
		t.Fatalf("unexpected timeout message %q", got)
	}
}
