package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/resilience"
)

// HTTPStatusError is a non-2xx answer from the Ollama runtime.
type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "ollama status error"
	}
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("ollama %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("ollama %s status: %s: %s", e.Operation, e.Status, body)
}

var (
	retryAndRecord = resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	recordOnly     = resilience.ErrorClassification{RecordFailure: true}
	ignore         = resilience.ErrorClassification{}
)

// classifyOllamaError decides retry and breaker accounting. A busy or
// restarting runtime is retried; an attempt that hit its timeout is not,
// because a model that stalls once on a long document usually stalls again.
func classifyOllamaError(err error) resilience.ErrorClassification {
	var statusErr *HTTPStatusError
	var netErr net.Error
	switch {
	case err == nil:
		return ignore
	case errors.Is(err, resilience.ErrAttemptTimeout):
		return recordOnly
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ignore
	case resilience.IsCircuitOpen(err):
		return retryAndRecord
	case errors.As(err, &statusErr):
		return classifyStatus(statusErr.StatusCode)
	case errors.As(err, &netErr):
		return retryAndRecord
	default:
		return recordOnly
	}
}

func classifyStatus(code int) resilience.ErrorClassification {
	switch {
	case code == http.StatusNotFound:
		// Model not pulled: every call fails until an operator fixes it.
		return recordOnly
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return retryAndRecord
	case code >= 500 && code != http.StatusNotImplemented:
		return retryAndRecord
	default:
		return ignore
	}
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyOllamaError(err).Retryable || errors.Is(err, resilience.ErrAttemptTimeout) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
