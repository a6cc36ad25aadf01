package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/resilience"
)

// ingestEvent is published once per accepted upload.
type ingestEvent struct {
	DocumentID string    `json:"document_id"`
	QueuedAt   time.Time `json:"queued_at"`
}

type QueueOptions struct {
	// Group is the queue group shared by all coordinators; each event is
	// delivered to one of them.
	Group    string
	Executor *resilience.Executor
	Logger   *slog.Logger
}

// Queue carries document ids from the upload handler to the processing
// coordinator.
type Queue struct {
	conn     *nats.Conn
	pub      publisher
	subject  string
	group    string
	executor *resilience.Executor
	logger   *slog.Logger
	now      func() time.Time
}

func NewQueue(conn *nats.Conn, subject string, options QueueOptions) *Queue {
	if options.Group == "" {
		options.Group = "coordinators"
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	q := &Queue{
		conn:     conn,
		subject:  subject,
		group:    options.Group,
		executor: options.Executor,
		logger:   options.Logger,
		now:      time.Now,
	}
	if conn != nil {
		q.pub = conn
	}
	return q
}

// Connected reports the state of the underlying connection.
func (q *Queue) Connected() bool {
	return q.conn != nil && q.conn.IsConnected()
}

func (q *Queue) PublishDocumentIngested(ctx context.Context, documentID string) error {
	if strings.TrimSpace(documentID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "publish ingest event", errors.New("document id is required"))
	}
	payload, err := json.Marshal(ingestEvent{DocumentID: documentID, QueuedAt: q.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal ingest event: %w", err)
	}
	return publish(ctx, q.executor, q.pub, "nats.ingest", q.subject, payload)
}

// SubscribeDocumentIngested blocks until ctx ends, then drains the
// subscription so events already received are still handled.
func (q *Queue) SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, q.group, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		q.handle(ctx, msg.Data, handler)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", q.subject, err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	q.logger.Info("ingest_subscription_started", "subject", q.subject, "group", q.group)

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	return nil
}

func (q *Queue) handle(ctx context.Context, data []byte, handler func(context.Context, string) error) {
	event, err := decodeIngestEvent(data)
	if err != nil {
		q.logger.Warn("ingest_event_dropped", "error", err)
		return
	}
	logger := q.logger.With("document_id", event.DocumentID)
	if !event.QueuedAt.IsZero() {
		logger.Debug("ingest_event_received", "queued_ms", q.now().Sub(event.QueuedAt).Milliseconds())
	}
	if err := handler(ctx, event.DocumentID); err != nil {
		logger.Error("ingest_handler_error", "error", err)
	}
}

func decodeIngestEvent(data []byte) (ingestEvent, error) {
	var event ingestEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return ingestEvent{}, fmt.Errorf("decode ingest event: %w", err)
	}
	if strings.TrimSpace(event.DocumentID) == "" {
		return ingestEvent{}, errors.New("ingest event without document id")
	}
	return event, nil
}
