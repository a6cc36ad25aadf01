package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/legal-doc-assistant/internal/core/domain"
)

const assistantRole = "You are a helpful assistant for a legal document review service. " +
	"You explain legal documents in plain language. You do not give legal advice; suggest consulting a lawyer for decisions."

func buildPlatformPrompt(question string, entries []domain.KnowledgeEntry) string {
	var b strings.Builder
	b.WriteString(assistantRole)
	b.WriteString("\n\nAnswer the user's question about the service using only the information below. ")
	b.WriteString("If the information does not cover the question, say so briefly.\n\nService information:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s: %s\n", e.Topic, strings.TrimSpace(e.Content))
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}

func buildDocumentPrompt(question, context, title string) string {
	var b strings.Builder
	b.WriteString(assistantRole)
	b.WriteString("\n\nAnswer the question using the document content below. Quote or reference the relevant parts. ")
	b.WriteString("If the answer is not in the content, say that the document does not mention it.\n\n")
	if title != "" {
		fmt.Fprintf(&b, "Document: %s\n", title)
	}
	b.WriteString("Content:\n")
	b.WriteString(context)
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}

func buildGeneralPrompt(question string) string {
	var b strings.Builder
	b.WriteString(assistantRole)
	b.WriteString("\n\nNo document content is available for this question. Answer from general knowledge, ")
	b.WriteString("keep it concise, and mention that uploading the relevant document allows a specific answer.\n\n")
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}

// joinHits renders retrieved passages with their source title.
func joinHits(hits []domain.SearchHit) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Metadata.Title != "" {
			parts = append(parts, fmt.Sprintf("[%s]\n%s", h.Metadata.Title, h.Content))
			continue
		}
		parts = append(parts, h.Content)
	}
	return strings.Join(parts, "\n\n---\n\n")
}
