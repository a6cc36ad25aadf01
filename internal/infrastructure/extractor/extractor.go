package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
	"github.com/kirillkom/legal-doc-assistant/internal/infrastructure/extractor/plaintext"
)

type pdfExtractor interface {
	Extract(ctx context.Context, raw []byte) (string, error)
}

// imageReader turns an image into text, typically OCR plus model enhancement.
type imageReader interface {
	Text(ctx context.Context, image []byte) (string, error)
}

// Router dispatches extraction by declared media type.
type Router struct {
	pdf    pdfExtractor
	images imageReader
}

func NewRouter(pdf pdfExtractor, images imageReader) *Router {
	return &Router{pdf: pdf, images: images}
}

func (r *Router) Extract(ctx context.Context, raw []byte, mimeType, filename string) (string, error) {
	mediaType := domain.NormalizeMediaType(mimeType)
	switch domain.ClassifyMediaType(mediaType) {
	case domain.MediaPDF:
		text, err := r.pdf.Extract(ctx, raw)
		if err != nil {
			if !domain.IsKind(err, domain.ErrExtraction) && ctx.Err() == nil {
				err = domain.WrapError(domain.ErrExtraction, "extract "+filename, err)
			}
			return "", err
		}
		return strings.TrimSpace(text), nil
	case domain.MediaImage:
		text, err := r.images.Text(ctx, raw)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(text), nil
	case domain.MediaText:
		return plaintext.Decode(raw), nil
	default:
		return "", domain.WrapError(domain.ErrUnsupportedMediaType, "extract "+filename, fmt.Errorf("media type %q", mediaType))
	}
}
