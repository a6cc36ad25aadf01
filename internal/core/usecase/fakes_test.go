package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
	"github.com/kirillkom/legal-doc-assistant/internal/core/ports"
)

type memRepo struct {
	mu       sync.Mutex
	docs     map[string]*domain.Document
	statuses map[string][]domain.DocumentStatus
	saveErr  error
}

func newMemRepo(docs ...*domain.Document) *memRepo {
	r := &memRepo{docs: map[string]*domain.Document{}, statuses: map[string][]domain.DocumentStatus{}}
	for _, d := range docs {
		copyDoc := *d
		r.docs[d.ID] = &copyDoc
	}
	return r
}

func (r *memRepo) Create(_ context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copyDoc := *doc
	r.docs[doc.ID] = &copyDoc
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id %s", id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (r *memRepo) ListByUser(_ context.Context, userID string) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Document{}
	for _, d := range r.docs {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	doc.Status = status
	doc.Error = errMessage
	r.statuses[id] = append(r.statuses[id], status)
	return nil
}

func (r *memRepo) SaveResult(_ context.Context, id, content string, analysis domain.Analysis, status domain.DocumentStatus, errMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	doc, ok := r.docs[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	doc.Content = content
	a := analysis
	doc.Analysis = &a
	doc.Status = status
	doc.Error = errMessage
	r.statuses[id] = append(r.statuses[id], status)
	return nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return domain.ErrDocumentNotFound
	}
	delete(r.docs, id)
	return nil
}

func (r *memRepo) doc(id string) domain.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.docs[id]
}

func (r *memRepo) statusTrail(id string) []domain.DocumentStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.DocumentStatus(nil), r.statuses[id]...)
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (s *memStorage) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = raw
	return nil
}

func (s *memStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (s *memStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

type notifierFake struct {
	mu   sync.Mutex
	sent []domain.Notification
	err  error
}

func (n *notifierFake) Notify(_ context.Context, msg domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *notifierFake) last() domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return domain.Notification{}
	}
	return n.sent[len(n.sent)-1]
}

// textExtractorFake returns the stored bytes as text, optionally delayed.
type textExtractorFake struct {
	delay time.Duration
	err   error

	mu     sync.Mutex
	active int
	peak   int
	calls  int
}

func (f *textExtractorFake) Extract(ctx context.Context, raw []byte, _, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return string(raw), nil
}

func (f *textExtractorFake) peakActive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

type analyzerFake struct {
	analysis domain.Analysis
	err      error

	mu    sync.Mutex
	calls int
}

func (f *analyzerFake) Analyze(context.Context, string) (domain.Analysis, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return domain.Analysis{}, f.err
	}
	return f.analysis, nil
}

func (f *analyzerFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// keywordEmbedder maps text onto one dimension per known keyword so that
// similarity in tests is fully predictable.
type keywordEmbedder struct {
	keywords []string
	err      error
}

func newKeywordEmbedder(keywords ...string) *keywordEmbedder {
	return &keywordEmbedder{keywords: keywords}
}

func (e *keywordEmbedder) vector(text string) []float32 {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	})
	v := make([]float32, len(e.keywords)+1)
	v[len(e.keywords)] = 0.01
	for _, w := range words {
		for i, kw := range e.keywords {
			if w == kw {
				v[i]++
			}
		}
	}
	return v
}

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *keywordEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

type generatorFake struct {
	response string
	err      error

	mu      sync.Mutex
	prompts []string
	opts    []ports.GenerateOptions
}

func (g *generatorFake) Generate(_ context.Context, prompt string, opts ports.GenerateOptions) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	g.opts = append(g.opts, opts)
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

func (g *generatorFake) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func (g *generatorFake) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

type backendFake struct {
	mu          sync.Mutex
	failPings   int
	pings       int
	warmups     int
	warmupError error
}

func (b *backendFake) Ping(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pings++
	if b.failPings > 0 {
		b.failPings--
		return errors.New("connection refused")
	}
	return nil
}

func (b *backendFake) Warmup(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.warmups++
	return b.warmupError
}

type metricsFake struct {
	mu       sync.Mutex
	started  int
	finished map[domain.DocumentStatus]int
	deferred map[string]int
}

func newMetricsFake() *metricsFake {
	return &metricsFake{finished: map[domain.DocumentStatus]int{}, deferred: map[string]int{}}
}

func (m *metricsFake) StartDocument() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *metricsFake) FinishDocument(status domain.DocumentStatus, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[status]++
}

func (m *metricsFake) ObserveQueueLag(time.Duration) {}

func (m *metricsFake) AdmissionDeferred(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deferred[reason]++
}

type knowledgeFake struct {
	entries []domain.KnowledgeEntry
}

func (k knowledgeFake) Relevant(string, int) []domain.KnowledgeEntry {
	return k.entries
}

type historyFake struct {
	mu        sync.Mutex
	exchanges []domain.ChatExchange
	err       error
}

func (h *historyFake) AppendExchange(_ context.Context, e domain.ChatExchange) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.exchanges = append(h.exchanges, e)
	return nil
}

func (h *historyFake) ListSession(_ context.Context, userID, sessionID string, limit int) ([]domain.ChatExchange, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := []domain.ChatExchange{}
	for _, e := range h.exchanges {
		if e.UserID == userID && e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

type processorFake struct {
	mu        sync.Mutex
	submitted []string
}

func (p *processorFake) Submit(_ context.Context, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitted = append(p.submitted, id)
}

func (p *processorFake) ProcessByID(context.Context, string) error { return nil }
