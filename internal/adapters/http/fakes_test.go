package httpadapter

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
)

type ingestFake struct {
	err      error
	userID   string
	mimeType string
}

func (f *ingestFake) Upload(_ context.Context, userID, filename, mimeType string, body io.Reader) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.userID = userID
	f.mimeType = mimeType
	now := time.Now().UTC()
	return &domain.Document{
		ID:          "doc-1",
		UserID:      userID,
		Filename:    filename,
		MimeType:    mimeType,
		SizeBytes:   int64(len(raw)),
		StoragePath: "doc-1_" + filename,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

type queryFake struct {
	err  error
	last domain.QueryRequest
}

func (f *queryFake) Ask(_ context.Context, req domain.QueryRequest) (*domain.Answer, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Answer{Text: "ok", HasContext: true, QueryType: domain.QueryDocument}, nil
}

type documentsFake struct {
	err     error
	ended   string
	deleted string
}

func (f *documentsFake) Get(_ context.Context, userID, documentID string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: documentID, UserID: userID, Status: domain.StatusCompleted}, nil
}

func (f *documentsFake) List(_ context.Context, userID string) ([]domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.Document{{ID: "doc-1", UserID: userID}}, nil
}

func (f *documentsFake) Reprocess(_ context.Context, userID, documentID string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: documentID, UserID: userID, Status: domain.StatusProcessing}, nil
}

func (f *documentsFake) Delete(_ context.Context, _, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = documentID
	return nil
}

func (f *documentsFake) EndSession(_ context.Context, userID string) error {
	f.ended = userID
	return f.err
}

type historyFake struct {
	sessionID string
	limit     int
}

func (f *historyFake) History(_ context.Context, userID, sessionID string, limit int) ([]domain.ChatExchange, error) {
	f.sessionID = sessionID
	f.limit = limit
	return []domain.ChatExchange{{ID: "e-1", UserID: userID, SessionID: sessionID}}, nil
}

type routerDeps struct {
	ingest    *ingestFake
	query     *queryFake
	documents *documentsFake
	history   *historyFake
}

func newTestRouter(opts Options) (http.Handler, *routerDeps) {
	deps := &routerDeps{
		ingest:    &ingestFake{},
		query:     &queryFake{},
		documents: &documentsFake{},
		history:   &historyFake{},
	}
	return NewRouter(deps.ingest, deps.query, deps.documents, deps.history, opts).Handler(), deps
}

func withUser(r *http.Request, userID string) *http.Request {
	r.Header.Set(userIDHeader, userID)
	return r
}
