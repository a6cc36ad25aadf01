package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
)

// ChatRepository stores question/answer exchanges per chat session.
type ChatRepository struct {
	db *sql.DB
}

func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) AppendExchange(ctx context.Context, exchange domain.ChatExchange) error {
	if exchange.CreatedAt.IsZero() {
		exchange.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO chat_exchanges (id, user_id, session_id, document_id, question, answer, query_type, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, exchange.ID, exchange.UserID, exchange.SessionID, nullableString(exchange.DocumentID),
		exchange.Question, exchange.Answer, string(exchange.QueryType), exchange.CreatedAt)
	if err != nil {
		return fmt.Errorf("append chat exchange: %w", err)
	}
	return nil
}

// ListSession returns the latest exchanges of a session in chronological order.
func (r *ChatRepository) ListSession(ctx context.Context, userID, sessionID string, limit int) ([]domain.ChatExchange, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, session_id, COALESCE(document_id, ''), question, answer, query_type, created_at
FROM chat_exchanges
WHERE user_id = $1 AND session_id = $2
ORDER BY created_at DESC
LIMIT $3
`, userID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat exchanges: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ChatExchange, 0, limit)
	for rows.Next() {
		var e domain.ChatExchange
		var queryType string
		if err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.SessionID,
			&e.DocumentID,
			&e.Question,
			&e.Answer,
			&queryType,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan chat exchange: %w", err)
		}
		e.QueryType = domain.QueryType(queryType)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat exchanges: %w", err)
	}

	// Returned in descending order from SQL; reverse to keep chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
