package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTemporary        = errors.New("temporary failure")
	ErrPayloadTooLarge  = errors.New("payload too large")

	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrExtraction           = errors.New("text extraction failed")
	ErrOCR                  = errors.New("ocr failed")
	ErrInsufficientContent  = errors.New("insufficient content")
	ErrEmbedding            = errors.New("embedding failed")
	ErrIndexNotInitialized  = errors.New("index not initialized")
	ErrGeneration           = errors.New("generation failed")
	ErrDocumentNotReady     = errors.New("document not ready")

	// ErrAdmissionDeferred signals the coordinator to retry admission later.
	// It never reaches API callers.
	ErrAdmissionDeferred = errors.New("admission deferred")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
