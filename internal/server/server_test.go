package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackzampolin/letterpress/internal/store"
)

// testServer builds a server over a seeded store and returns it with
// the document and page ids created.
func testServer(t *testing.T) (*Server, *store.Store, int64, int64) {
	t.Helper()
	s, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	docID, err := s.CreateDocument(ctx, "1943-01-15", "430115")
	if err != nil {
		t.Fatal(err)
	}
	pdfPath := filepath.Join(t.TempDir(), "430115-1.pdf")
	if err := os.WriteFile(pdfPath, []byte("%PDF-1.4 scan bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	pageID, err := s.CreatePage(ctx, docID, 1, pdfPath, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.WritePage(ctx, pageID, store.StatusCompleted, "Dear Mother, the winter here is harsh.", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateDocument(ctx, "1944-06-02", "440602"); err != nil {
		t.Fatal(err)
	}

	return New(Config{Store: s}), s, docID, pageID
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	srv, _, _, _ := testServer(t)
	w := get(t, srv, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp HealthResponse
	decode(t, w, &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestStats(t *testing.T) {
	srv, _, _, _ := testServer(t)
	w := get(t, srv, "/api/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var stats store.Stats
	decode(t, w, &stats)
	if stats.Documents != 2 {
		t.Errorf("documents = %d, want 2", stats.Documents)
	}
	if stats.Pages["completed"] != 1 {
		t.Errorf("completed pages = %d, want 1", stats.Pages["completed"])
	}
}

func TestListDocuments(t *testing.T) {
	srv, _, _, _ := testServer(t)

	t.Run("all", func(t *testing.T) {
		w := get(t, srv, "/api/documents")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var resp DocumentsResponse
		decode(t, w, &resp)
		if resp.Total != 2 || len(resp.Documents) != 2 {
			t.Errorf("total = %d, documents = %d", resp.Total, len(resp.Documents))
		}
		// Default sort is ascending by date.
		if resp.Documents[0].Date != "1943-01-15" {
			t.Errorf("first document = %s", resp.Documents[0].Date)
		}
	})

	t.Run("year filter", func(t *testing.T) {
		w := get(t, srv, "/api/documents?year=1944")
		var resp DocumentsResponse
		decode(t, w, &resp)
		if resp.Total != 1 || resp.Documents[0].Label != "440602" {
			t.Errorf("resp = %+v", resp)
		}
	})

	t.Run("descending sort", func(t *testing.T) {
		w := get(t, srv, "/api/documents?sort=desc")
		var resp DocumentsResponse
		decode(t, w, &resp)
		if resp.Documents[0].Date != "1944-06-02" {
			t.Errorf("first document = %s", resp.Documents[0].Date)
		}
	})

	t.Run("pagination", func(t *testing.T) {
		w := get(t, srv, "/api/documents?limit=1&offset=1")
		var resp DocumentsResponse
		decode(t, w, &resp)
		if resp.Total != 2 || len(resp.Documents) != 1 {
			t.Errorf("total = %d, page size = %d", resp.Total, len(resp.Documents))
		}
	})
}

func TestGetDocument(t *testing.T) {
	srv, _, docID, _ := testServer(t)

	w := get(t, srv, fmt.Sprintf("/api/documents/%d", docID))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp DocumentResponse
	decode(t, w, &resp)
	if resp.Label != "430115" || len(resp.Pages) != 1 {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Pages[0].Transcription == "" {
		t.Error("document detail should include page transcriptions")
	}

	t.Run("not found", func(t *testing.T) {
		if w := get(t, srv, "/api/documents/9999"); w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("bad id", func(t *testing.T) {
		if w := get(t, srv, "/api/documents/abc"); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})
}

func TestGetFile(t *testing.T) {
	srv, _, docID, pageID := testServer(t)

	w := get(t, srv, fmt.Sprintf("/api/files/%d", pageID))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var page store.Page
	decode(t, w, &page)
	if page.DocumentID != docID || page.Status != store.StatusCompleted {
		t.Errorf("page = %+v", page)
	}
}

func TestFilePDF(t *testing.T) {
	srv, _, _, pageID := testServer(t)

	w := get(t, srv, fmt.Sprintf("/api/files/%d/pdf", pageID))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Body.Len() == 0 {
		t.Error("expected PDF bytes")
	}

	t.Run("missing file", func(t *testing.T) {
		if w := get(t, srv, "/api/files/9999/pdf"); w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})
}

func TestSearch(t *testing.T) {
	srv, _, docID, _ := testServer(t)

	w := get(t, srv, "/api/search?q=winter")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp SearchResponse
	decode(t, w, &resp)
	if len(resp.Results) != 1 || resp.Results[0].DocumentID != docID {
		t.Errorf("results = %+v", resp.Results)
	}

	t.Run("missing query", func(t *testing.T) {
		if w := get(t, srv, "/api/search"); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("no hits", func(t *testing.T) {
		w := get(t, srv, "/api/search?q=zeppelin")
		var resp SearchResponse
		decode(t, w, &resp)
		if len(resp.Results) != 0 {
			t.Errorf("results = %+v", resp.Results)
		}
	})
}

func TestFilters(t *testing.T) {
	srv, _, _, _ := testServer(t)

	w := get(t, srv, "/api/filters")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var filters store.FilterValues
	decode(t, w, &filters)
	if len(filters.Years) != 2 || filters.Years[0] != "1943" {
		t.Errorf("years = %v", filters.Years)
	}
}
