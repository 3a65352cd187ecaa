package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/jackzampolin/letterpress/internal/store"
)

// registerRoutes sets up all HTTP routes.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/documents", s.handleListDocuments)
	mux.HandleFunc("GET /api/documents/{id}", s.handleGetDocument)
	mux.HandleFunc("GET /api/files/{id}", s.handleGetFile)
	mux.HandleFunc("GET /api/files/{id}/pdf", s.handleFilePDF)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/filters", s.handleFilters)
}

// HealthResponse is the response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetStats(r.Context())
	if err != nil {
		s.serverError(w, "failed to load stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// DocumentsResponse is a paginated document listing.
type DocumentsResponse struct {
	Documents []store.Document `json:"documents"`
	Total     int              `json:"total"`
	Limit     int              `json:"limit"`
	Offset    int              `json:"offset"`
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := store.ListOptions{
		Year:          q.Get("year"),
		Status:        q.Get("status"),
		SummaryStatus: q.Get("summary_status"),
		SortDesc:      q.Get("sort") == "desc",
		Limit:         intParam(q.Get("limit"), 50),
		Offset:        intParam(q.Get("offset"), 0),
	}

	docs, total, err := s.store.ListDocuments(r.Context(), opts)
	if err != nil {
		s.serverError(w, "failed to list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentsResponse{
		Documents: docs,
		Total:     total,
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
}

// DocumentResponse is one document together with its pages.
type DocumentResponse struct {
	store.Document
	Pages []store.Page `json:"pages"`
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	doc, err := s.store.GetDocument(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "failed to get document")
		return
	}
	pages, err := s.store.DocumentPages(r.Context(), id)
	if err != nil {
		s.serverError(w, "failed to load document pages", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentResponse{Document: *doc, Pages: pages})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	page, err := s.store.GetPage(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "failed to get file")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleFilePDF(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	page, err := s.store.GetPage(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "failed to get file")
		return
	}

	f, err := os.Open(page.SourcePath)
	if err != nil {
		writeError(w, http.StatusNotFound, "source file not available")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.serverError(w, "failed to stat source file", err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// SearchResponse is a search hit listing.
type SearchResponse struct {
	Query   string               `json:"query"`
	Results []store.SearchResult `json:"results"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter: q")
		return
	}

	results, err := s.store.Search(r.Context(), q, intParam(r.URL.Query().Get("limit"), 50))
	if err != nil {
		s.serverError(w, "search failed", err)
		return
	}
	if results == nil {
		results = []store.SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: q, Results: results})
}

func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	filters, err := s.store.Filters(r.Context())
	if err != nil {
		s.serverError(w, "failed to load filters", err)
		return
	}
	writeJSON(w, http.StatusOK, filters)
}

// idParam parses the {id} path segment, writing a 400 on failure.
func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func intParam(v string, def int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// storeError maps store lookup failures to HTTP status codes.
func (s *Server) storeError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	s.serverError(w, msg, err)
}

// serverError logs the underlying error and reports a generic message,
// never the raw failure.
func (s *Server) serverError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, msg)
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
