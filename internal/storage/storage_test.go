package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReportStoreSaveListDelete(t *testing.T) {
	store, err := NewReportStore(filepath.Join(t.TempDir(), "reports"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	path, err := store.Save("d1", "../escape.docx", strings.NewReader("report body"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Base(path) != "escape.docx" || filepath.Base(filepath.Dir(path)) != "d1" {
		t.Fatalf("unexpected path %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "report body" {
		t.Fatalf("read back: %q %v", data, err)
	}
	if _, err := store.Save("d0", "a.docx", strings.NewReader("x")); err != nil {
		t.Fatalf("save second: %v", err)
	}

	reports, err := store.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(reports) != 2 || reports[0].DocID != "d0" || reports[1].Size != int64(len("report body")) {
		t.Fatalf("unexpected list: %+v", reports)
	}

	if err := store.Delete("d1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete("missing"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
	reports, _ = store.List()
	if len(reports) != 1 {
		t.Fatalf("expected one report left, got %+v", reports)
	}
}

func TestNewReportStoreRequiresPath(t *testing.T) {
	if _, err := NewReportStore("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestArchiveKey(t *testing.T) {
	if got := ArchiveKey("uploads", " Acme ", "", "/rfp1.pdf"); got != "uploads/Acme/rfp1.pdf" {
		t.Fatalf("key = %q", got)
	}
	if got := ContentType("report.PDF"); got != "application/pdf" {
		t.Fatalf("content type = %q", got)
	}
	if got := ContentType("blob.unknownext"); got != "application/octet-stream" {
		t.Fatalf("content type = %q", got)
	}
}
