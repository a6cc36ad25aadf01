package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewAddsServiceAndDropsBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "api", "info")
	logger.Debug("ignored")
	logger.Info("document_processing_started", "user_id", "u-1", "document_id", "doc-1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["service"] != "api" || entry["user_id"] != "u-1" || entry["document_id"] != "doc-1" {
		t.Fatalf("unexpected log attributes: %v", entry)
	}
}
