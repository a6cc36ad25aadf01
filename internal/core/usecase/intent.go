package usecase

import (
	"regexp"
	"strings"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
)

var greetingPattern = regexp.MustCompile(`^(hi|hello|hey|hiya|howdy|greetings|yo|good (morning|afternoon|evening)|thanks|thank you|thx)( there| all| everyone)?[\s!.,?)(:]*$`)

var platformPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(this|the|your) (app|application|platform|assistant|tool|website)\b|\byour service\b`),
	regexp.MustCompile(`\bwhat can you do\b|\bwho are you\b|\bhow do(es)? (you|this app|the app) work\b`),
	regexp.MustCompile(`\bwhat features\b|\b(app|platform) features?\b|\bcapabilities\b`),
	regexp.MustCompile(`\b(privacy|data security|my data|encrypt\w*|data retention)\b`),
	regexp.MustCompile(`\b(pricing|subscription|billing)\b|\b(premium|free|paid) plans?\b`),
	regexp.MustCompile(`\b(supported|which|what) (file )?(formats?|file types?)\b`),
	regexp.MustCompile(`\bhow (do|can) i (upload|delete|remove|reprocess|sign in|log ?in|log ?out|get started|set up|setup)\b`),
	regexp.MustCompile(`\b(legal advice|are you a lawyer)\b`),
}

var documentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(documents?|contracts?|agreements?|leases?|clauses?|sections?|terms?|pages?|files?|uploads?)\b`),
	regexp.MustCompile(`\b(summari[sz]e|according to|in my|what does it say)\b`),
}

var greetingReplies = []string{
	"Hello! Upload a legal document or ask me a question about the ones you have already shared.",
	"Hi there! I can review contracts, leases and other legal documents. What would you like to know?",
	"Hey! Ask me anything about your documents, or upload a new one to get started.",
}

// IsGreeting reports short small-talk input that needs no model call.
func IsGreeting(question string) bool {
	q := strings.ToLower(strings.TrimSpace(question))
	if q == "" || len(q) > 40 {
		return false
	}
	return greetingPattern.MatchString(q)
}

// ClassifyQueryIntent is a keyword classifier; it can be swapped for a
// model-based one without touching the composer.
func ClassifyQueryIntent(question string) domain.QueryType {
	q := strings.ToLower(strings.TrimSpace(question))
	for _, p := range platformPatterns {
		if p.MatchString(q) {
			return domain.QueryPlatform
		}
	}
	for _, p := range documentPatterns {
		if p.MatchString(q) {
			return domain.QueryDocument
		}
	}
	return domain.QueryGeneral
}
