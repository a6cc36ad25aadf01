package ollama

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
	"github.com/kirillkom/legal-doc-assistant/internal/core/ports"
)

// AnalysisOptions keeps the review prompt short and close to deterministic.
var AnalysisOptions = ports.GenerateOptions{
	Temperature: 0.1,
	TopP:        0.9,
	MaxTokens:   400,
	JSON:        true,
}

type Analyzer struct {
	client *Client
}

func NewAnalyzer(client *Client) *Analyzer {
	return &Analyzer{client: client}
}

func (a *Analyzer) Analyze(ctx context.Context, text string) (domain.Analysis, error) {
	respText, err := a.client.Generate(ctx, buildAnalysisPrompt(text), AnalysisOptions)
	if err != nil {
		return domain.Analysis{}, err
	}
	return ParseAnalysis(respText), nil
}

type analysisPayload struct {
	DocumentType string   `json:"document_type"`
	Type         string   `json:"type"`
	KeyTerms     []string `json:"key_terms"`
	RiskLevel    string   `json:"risk_level"`
	Concerns     []string `json:"concerns"`
	Summary      string   `json:"summary"`
}

// ParseAnalysis decodes the model answer. Undecodable output yields a
// ParseFallback analysis that keeps the raw text.
func ParseAnalysis(raw string) domain.Analysis {
	var payload analysisPayload
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &payload); err != nil {
		return domain.Analysis{
			DocumentType:  "unknown",
			KeyTerms:      []string{},
			RiskLevel:     "unknown",
			Concerns:      []string{},
			ParseFallback: true,
			Raw:           raw,
		}
	}

	docType := strings.TrimSpace(payload.DocumentType)
	if docType == "" {
		docType = strings.TrimSpace(payload.Type)
	}
	if docType == "" {
		docType = "unknown"
	}
	return domain.Analysis{
		DocumentType: docType,
		KeyTerms:     nonEmpty(payload.KeyTerms),
		RiskLevel:    normalizeRiskLevel(payload.RiskLevel),
		Concerns:     nonEmpty(payload.Concerns),
		Summary:      strings.TrimSpace(payload.Summary),
	}
}

func normalizeRiskLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "low":
		return "low"
	case "medium", "moderate":
		return "medium"
	case "high", "critical":
		return "high"
	default:
		return "unknown"
	}
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
