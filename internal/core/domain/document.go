package domain

import "time"

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// IsTerminal reports whether no further pipeline transition is expected.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type Document struct {
	ID          string         `json:"id"`
	UserID      string         `json:"user_id"`
	Filename    string         `json:"filename"`
	MimeType    string         `json:"mime_type"`
	SizeBytes   int64          `json:"size_bytes"`
	StoragePath string         `json:"storage_path"`
	Content     string         `json:"content,omitempty"`
	Analysis    *Analysis      `json:"analysis,omitempty"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Analysis is the structured result of the fast document review prompt.
// ParseFallback is set when the model answer could not be decoded; Raw then
// keeps the original model output so nothing is silently dropped.
type Analysis struct {
	DocumentType  string   `json:"document_type"`
	KeyTerms      []string `json:"key_terms"`
	RiskLevel     string   `json:"risk_level"`
	Concerns      []string `json:"concerns"`
	Summary       string   `json:"summary"`
	ParseFallback bool     `json:"parse_fallback,omitempty"`
	Raw           string   `json:"raw,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// FailedAnalysis is persisted as the analysis payload of a failed document.
func FailedAnalysis(message string) Analysis {
	return Analysis{Error: message}
}

type OCRResult struct {
	RawText          string  `json:"raw_text"`
	EnhancedText     string  `json:"enhanced_text"`
	Summary          string  `json:"summary"`
	Confidence       float64 `json:"confidence"`
	EnhancementError string  `json:"enhancement_error,omitempty"`
}

// ChatExchange is one question/answer pair recorded for a chat session.
type ChatExchange struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	SessionID  string    `json:"session_id"`
	DocumentID string    `json:"document_id,omitempty"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	QueryType  QueryType `json:"query_type"`
	CreatedAt  time.Time `json:"created_at"`
}

// Notification is a fire-and-forget user message about a document job.
type Notification struct {
	UserID  string `json:"user_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

const (
	NotificationSuccess = "success"
	NotificationError   = "error"
)
