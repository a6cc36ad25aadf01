package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
	"github.com/kirillkom/legal-doc-assistant/internal/core/ports"
)

const (
	minMeaningfulChars = 10
	noTextSummary      = "No significant text found"

	cleanedMarker = "CLEANED TEXT:"
	summaryMarker = "SUMMARY:"
)

var enhanceOptions = ports.GenerateOptions{
	Temperature: 0.1,
	TopP:        0.9,
	MaxTokens:   1024,
}

// Enhancer corrects raw OCR output with the generation model and scores the result.
type Enhancer struct {
	engine    ports.OCREngine
	generator ports.TextGenerator
	logger    *slog.Logger
}

func NewEnhancer(engine ports.OCREngine, generator ports.TextGenerator, logger *slog.Logger) *Enhancer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enhancer{engine: engine, generator: generator, logger: logger}
}

// EnhancedOCR fails only when the OCR engine fails. A model failure keeps the
// raw text and records the error on the result.
func (e *Enhancer) EnhancedOCR(ctx context.Context, image []byte) (domain.OCRResult, error) {
	raw, err := e.engine.Recognize(ctx, image)
	if err != nil {
		if !domain.IsKind(err, domain.ErrOCR) {
			err = domain.WrapError(domain.ErrOCR, "ocr recognize", err)
		}
		return domain.OCRResult{}, err
	}

	if meaningfulChars(raw) < minMeaningfulChars {
		return domain.OCRResult{
			RawText:      raw,
			EnhancedText: raw,
			Summary:      noTextSummary,
			Confidence:   Confidence(raw, raw),
		}, nil
	}

	response, err := e.generator.Generate(ctx, buildEnhancePrompt(raw), enhanceOptions)
	if err != nil {
		e.logger.Warn("ocr_enhancement_failed", "error", err)
		return domain.OCRResult{
			RawText:          raw,
			EnhancedText:     raw,
			Confidence:       Confidence(raw, raw),
			EnhancementError: fmt.Sprintf("enhancement failed, raw OCR text kept: %v", err),
		}, nil
	}

	parsed := parseEnhancement(response)
	enhanced := parsed.Cleaned
	if parsed.Fallback {
		enhanced = raw
	}
	return domain.OCRResult{
		RawText:      raw,
		EnhancedText: enhanced,
		Summary:      parsed.Summary,
		Confidence:   Confidence(raw, enhanced),
	}, nil
}

// Text satisfies the extractor's image path: enhanced text when present, raw otherwise.
func (e *Enhancer) Text(ctx context.Context, image []byte) (string, error) {
	result, err := e.EnhancedOCR(ctx, image)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(result.EnhancedText) != "" {
		return result.EnhancedText, nil
	}
	return result.RawText, nil
}

func buildEnhancePrompt(raw string) string {
	var b strings.Builder
	b.WriteString("The following text was produced by OCR from a scanned legal document and may contain recognition errors.\n")
	b.WriteString("1. Correct misrecognized characters, broken spacing and spelling without changing the meaning.\n")
	b.WriteString("2. Write a one-paragraph summary of what the document appears to be for.\n\n")
	b.WriteString("Answer in exactly this format:\n")
	b.WriteString(cleanedMarker + "\n<corrected text>\n\n")
	b.WriteString(summaryMarker + "\n<summary>\n\n")
	b.WriteString("OCR TEXT:\n")
	b.WriteString(raw)
	return b.String()
}

type enhancement struct {
	Cleaned  string
	Summary  string
	Fallback bool
}

func parseEnhancement(response string) enhancement {
	cleanedAt := strings.Index(response, cleanedMarker)
	summaryAt := strings.Index(response, summaryMarker)

	var out enhancement
	if summaryAt >= 0 {
		out.Summary = strings.TrimSpace(response[summaryAt+len(summaryMarker):])
	}
	if cleanedAt < 0 {
		out.Fallback = true
		return out
	}

	body := response[cleanedAt+len(cleanedMarker):]
	if summaryAt > cleanedAt {
		body = response[cleanedAt+len(cleanedMarker) : summaryAt]
	}
	out.Cleaned = strings.TrimSpace(body)
	if out.Cleaned == "" {
		out.Fallback = true
	}
	return out
}

// Confidence is a heuristic in [0,1] for whether enhancement plausibly worked.
func Confidence(raw, enhanced string) float64 {
	score := 0.0
	if strings.ContainsAny(enhanced, ".!?") && strings.Contains(enhanced, " ") {
		score += 0.3
	}
	if len(enhanced) > 20 {
		score += 0.2
	}

	rawWords := len(strings.Fields(raw))
	if rawWords == 0 {
		return 0
	}
	ratio := float64(len(strings.Fields(enhanced))) / float64(rawWords)
	if ratio > 2 {
		ratio = 2
	}
	score *= ratio
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}
