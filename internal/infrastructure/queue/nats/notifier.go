package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/resilience"
)

// Notifier publishes user notifications as JSON on "<prefix>.<user token>".
type Notifier struct {
	pub      publisher
	prefix   string
	executor *resilience.Executor
}

func NewNotifier(pub publisher, prefix string, executor *resilience.Executor) *Notifier {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "notifications"
	}
	return &Notifier{pub: pub, prefix: prefix, executor: executor}
}

func (n *Notifier) Subject(userID string) string {
	return n.prefix + "." + SubjectToken(userID)
}

func (n *Notifier) Notify(ctx context.Context, msg domain.Notification) error {
	if strings.TrimSpace(msg.UserID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "notify", errors.New("notification without user id"))
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return publish(ctx, n.executor, n.pub, "nats.notify", n.Subject(msg.UserID), payload)
}

// SubjectToken turns a user id into exactly one subject token. ASCII letters,
// digits, '-' and '_' are kept; every other byte becomes %XX, so ids such as
// emails cannot add tokens or wildcards.
func SubjectToken(id string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0F])
		}
	}
	return b.String()
}
