package ollama

import "unicode/utf8"

const analysisSnippetRunes = 4000

func buildAnalysisPrompt(text string) string {
	return `You are a legal document reviewer.
Return a strict JSON object with keys:
document_type (string, e.g. "lease agreement", "employment contract", "nda"),
key_terms (array of at most 8 short strings),
risk_level (one of "low", "medium", "high"),
concerns (array of at most 5 short strings),
summary (string, at most 3 sentences).
No markdown, no extra keys.

Document:
` + truncateRunes(text, analysisSnippetRunes)
}

func truncateRunes(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit])
}
