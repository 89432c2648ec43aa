package objectstore

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestDiskRoundTrip(t *testing.T) {
	store, err := NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}
	ctx := context.Background()

	path, err := store.Upload(ctx, "doc.pdf", bytes.NewReader([]byte("pdf bytes")))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if path != "doc.pdf" {
		t.Errorf("path = %q, want doc.pdf", path)
	}

	data, err := store.Download(ctx, path)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if string(data) != "pdf bytes" {
		t.Errorf("data = %q", data)
	}

	if err := store.Delete(ctx, []string{path}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Download(ctx, path); err == nil {
		t.Error("Download after Delete should fail")
	}
}

func TestDiskDeleteMissingIsNoError(t *testing.T) {
	store, err := NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}

	if err := store.Delete(context.Background(), []string{"never-uploaded.pdf"}); err != nil {
		t.Errorf("Delete missing object: %v", err)
	}
}

func TestDiskRejectsTraversal(t *testing.T) {
	store, err := NewDisk(t.TempDir())
	if err != nil {
		t.Fatalf("NewDisk: %v", err)
	}

	_, err = store.Upload(context.Background(), "../escape.pdf", strings.NewReader("x"))
	if err != nil {
		// Clean strips the traversal; either rejection or containment is fine,
		// but the file must land inside the root.
		return
	}
	if _, err := store.Download(context.Background(), "escape.pdf"); err != nil {
		t.Errorf("contained object not readable: %v", err)
	}
}
