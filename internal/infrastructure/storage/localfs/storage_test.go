package localfs

import (
	"context"
	"io"
	"strings"
	"testing"
)

func TestSaveOpenDelete(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, "doc-1_lease.pdf", strings.NewReader("%PDF-1.4")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	rc, err := store.Open(ctx, "doc-1_lease.pdf")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	raw, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil || string(raw) != "%PDF-1.4" {
		t.Fatalf("unexpected content %q (%v)", raw, err)
	}

	if err := store.Delete(ctx, "doc-1_lease.pdf"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "doc-1_lease.pdf"); err != nil {
		t.Fatalf("second Delete() should be a no-op, got %v", err)
	}
	if _, err := store.Open(ctx, "doc-1_lease.pdf"); err == nil {
		t.Fatalf("expected open of deleted file to fail")
	}
}

func TestRejectsKeysOutsideBasePath(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, key := range []string{"", "../escape", "a/b", ".."} {
		if err := store.Save(context.Background(), key, strings.NewReader("x")); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}
