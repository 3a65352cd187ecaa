package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackzampolin/letterpress/internal/store"
)

func TestParseFilename(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantDate string
		wantPart int
		ok       bool
	}{
		{"basic", "430115-1.pdf", "1943-01-15", 1, true},
		{"later part", "440102-3.pdf", "1944-01-02", 3, true},
		{"double digit part", "450630-12.pdf", "1945-06-30", 12, true},
		{"no part", "430115.pdf", "", 0, false},
		{"dashes in date", "43-01-15-1.pdf", "", 0, false},
		{"short date", "4301-1.pdf", "", 0, false},
		{"not a pdf", "430115-1.txt", "", 0, false},
		{"month out of range", "431315-1.pdf", "", 0, false},
		{"day out of range", "430132-1.pdf", "", 0, false},
		{"zero part", "430115-0.pdf", "", 0, false},
		{"trailing junk", "430115-1.pdf.bak", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sf, ok := parseFilename(tt.filename)
			if ok != tt.ok {
				t.Fatalf("parseFilename(%q) ok = %v, want %v", tt.filename, ok, tt.ok)
			}
			if !ok {
				return
			}
			if sf.date != tt.wantDate {
				t.Errorf("date = %q, want %q", sf.date, tt.wantDate)
			}
			if sf.partIndex != tt.wantPart {
				t.Errorf("part = %d, want %d", sf.partIndex, tt.wantPart)
			}
		})
	}
}

func stubPageCount(t *testing.T, fn func(path string) (int, error)) {
	t.Helper()
	orig := pageCount
	pageCount = fn
	t.Cleanup(func() { pageCount = orig })
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeScans(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("%PDF-1.4"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScan(t *testing.T) {
	stubPageCount(t, func(path string) (int, error) { return 1, nil })

	s := openTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeScans(t, dir, "430115-1.pdf", "430115-2.pdf", "440102-1.pdf", "notes.txt")

	res, err := Scan(ctx, s, Request{Dir: dir})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if res.Scanned != 3 || res.Documents != 2 || res.Pages != 3 || res.Skipped != 1 {
		t.Errorf("result = %+v, want 3 scanned, 2 documents, 3 pages, 1 skipped", res)
	}

	doc, err := s.GetDocumentByLabel(ctx, "430115")
	if err != nil {
		t.Fatalf("document 430115 missing: %v", err)
	}
	if doc.Date != "1943-01-15" {
		t.Errorf("date = %q", doc.Date)
	}
	pages, err := s.DocumentPages(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 {
		t.Fatalf("document has %d pages, want 2", len(pages))
	}
	if pages[0].PartIndex != 1 || pages[1].PartIndex != 2 {
		t.Errorf("parts out of order: %d, %d", pages[0].PartIndex, pages[1].PartIndex)
	}
	if pages[0].Status != store.StatusPending {
		t.Errorf("new page status = %q, want pending", pages[0].Status)
	}
}

func TestScanIdempotent(t *testing.T) {
	stubPageCount(t, func(path string) (int, error) { return 1, nil })

	s := openTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeScans(t, dir, "430115-1.pdf", "430115-2.pdf")

	if _, err := Scan(ctx, s, Request{Dir: dir}); err != nil {
		t.Fatal(err)
	}

	// A new file appears between passes; only it is picked up.
	writeScans(t, dir, "430115-3.pdf")
	res, err := Scan(ctx, s, Request{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if res.Documents != 0 || res.Pages != 1 {
		t.Errorf("second pass = %+v, want 0 documents, 1 page", res)
	}

	doc, err := s.GetDocumentByLabel(ctx, "430115")
	if err != nil {
		t.Fatal(err)
	}
	pages, err := s.DocumentPages(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 3 {
		t.Errorf("document has %d pages after two passes, want 3", len(pages))
	}
}

func TestScanSkipsInvalidPDF(t *testing.T) {
	stubPageCount(t, func(path string) (int, error) {
		if filepath.Base(path) == "430116-1.pdf" {
			return 0, fmt.Errorf("corrupt xref")
		}
		return 1, nil
	})

	s := openTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeScans(t, dir, "430115-1.pdf", "430116-1.pdf")

	res, err := Scan(ctx, s, Request{Dir: dir})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if res.Pages != 1 || res.Skipped != 1 {
		t.Errorf("result = %+v, want 1 page, 1 skipped", res)
	}
	if _, err := s.GetDocumentByLabel(ctx, "430116"); !errors.Is(err, store.ErrNotFound) {
		t.Error("corrupt scan must not create a document")
	}
}

func TestScanMissingDir(t *testing.T) {
	s := openTestStore(t)
	if _, err := Scan(context.Background(), s, Request{Dir: "/nonexistent"}); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
