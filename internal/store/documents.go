package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

// documentColumns are the columns selected for a full Document row, plus
// the derived page count.
var documentColumns = []any{
	goqu.I("d.id"), goqu.I("d.date"), goqu.I("d.label"),
	goqu.I("d.transcription_status"), goqu.I("d.summary_status"),
	goqu.I("d.summary"), goqu.I("d.summary_meta"), goqu.I("d.created_at"),
	goqu.COUNT(goqu.I("p.id")).As("page_count"),
}

// CreateDocument inserts a document row if no document with the given
// label exists yet, returning the document id either way.
func (s *Store) CreateDocument(ctx context.Context, date, label string) (int64, error) {
	existing, err := s.GetDocumentByLabel(ctx, label)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	query, args, err := s.q.Insert("documents").Rows(goqu.Record{
		"date":       date,
		"label":      label,
		"created_at": now(),
	}).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("failed to build insert query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to create document %s: %w", label, err)
	}
	return res.LastInsertId()
}

// GetDocument returns a document by id.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	return s.getDocument(ctx, goqu.Ex{"d.id": id})
}

// GetDocumentByLabel returns a document by its date label (e.g. "440102").
func (s *Store) GetDocumentByLabel(ctx context.Context, label string) (*Document, error) {
	return s.getDocument(ctx, goqu.Ex{"d.label": label})
}

func (s *Store) getDocument(ctx context.Context, where goqu.Ex) (*Document, error) {
	query, args, err := s.q.From(goqu.T("documents").As("d")).
		LeftJoin(goqu.T("pages").As("p"), goqu.On(goqu.I("p.document_id").Eq(goqu.I("d.id")))).
		Select(documentColumns...).
		Where(where).
		GroupBy(goqu.I("d.id")).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListOptions controls document listing.
type ListOptions struct {
	Year          string // filter: YYYY prefix of the document date
	Status        string // filter: aggregate transcription status
	SummaryStatus string // filter: summary status
	SortDesc      bool   // sort by date descending (default ascending)
	Limit         int
	Offset        int
}

// ListDocuments returns documents matching the options plus the total
// match count (for pagination).
func (s *Store) ListDocuments(ctx context.Context, opts ListOptions) ([]Document, int, error) {
	where := []goqu.Expression{}
	if opts.Year != "" {
		where = append(where, goqu.I("d.date").Like(opts.Year+"-%"))
	}
	if opts.Status != "" {
		where = append(where, goqu.I("d.transcription_status").Eq(opts.Status))
	}
	if opts.SummaryStatus != "" {
		where = append(where, goqu.I("d.summary_status").Eq(opts.SummaryStatus))
	}

	countQuery, countArgs, err := s.q.From(goqu.T("documents").As("d")).
		Select(goqu.COUNT(goqu.Star())).
		Where(where...).
		ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	order := []exp.OrderedExpression{goqu.I("d.date").Asc(), goqu.I("d.id").Asc()}
	if opts.SortDesc {
		order = []exp.OrderedExpression{goqu.I("d.date").Desc(), goqu.I("d.id").Desc()}
	}

	ds := s.q.From(goqu.T("documents").As("d")).
		LeftJoin(goqu.T("pages").As("p"), goqu.On(goqu.I("p.document_id").Eq(goqu.I("d.id")))).
		Select(documentColumns...).
		Where(where...).
		GroupBy(goqu.I("d.id")).
		Order(order...)
	if opts.Limit > 0 {
		ds = ds.Limit(uint(opts.Limit)).Offset(uint(opts.Offset))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build list query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *doc)
	}
	return docs, total, rows.Err()
}

// SearchResult is one search hit over transcribed or summarized text.
type SearchResult struct {
	DocumentID int64  `json:"document_id"`
	Date       string `json:"date"`
	Label      string `json:"label"`
	PageID     int64  `json:"page_id,omitempty"`
	PartIndex  int    `json:"part_index,omitempty"`
	Snippet    string `json:"snippet"`
}

// Search finds documents whose transcriptions or summaries contain the
// query string, newest matches first.
func (s *Store) Search(ctx context.Context, q string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + q + "%"

	query, args, err := s.q.From(goqu.T("pages").As("p")).
		Join(goqu.T("documents").As("d"), goqu.On(goqu.I("p.document_id").Eq(goqu.I("d.id")))).
		Select(goqu.I("d.id"), goqu.I("d.date"), goqu.I("d.label"),
			goqu.I("p.id"), goqu.I("p.part_index"), goqu.I("p.transcription")).
		Where(goqu.I("p.transcription").Like(pattern)).
		Order(goqu.I("d.date").Desc(), goqu.I("p.part_index").Asc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build search query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	results := []SearchResult{}
	for rows.Next() {
		var r SearchResult
		var text string
		if err := rows.Scan(&r.DocumentID, &r.Date, &r.Label, &r.PageID, &r.PartIndex, &text); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		r.Snippet = snippet(text, q)
		results = append(results, r)
	}
	return results, rows.Err()
}

// FilterValues describes the values available for list filtering.
type FilterValues struct {
	Years    []string `json:"years"`
	Statuses []string `json:"statuses"`
}

// Filters returns the distinct years present in the archive and the
// status vocabulary, for building browse filter menus.
func (s *Store) Filters(ctx context.Context) (*FilterValues, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT substr(date, 1, 4) FROM documents ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query filter years: %w", err)
	}
	defer rows.Close()

	fv := &FilterValues{
		Statuses: []string{
			string(DocStatusPending), string(DocStatusPartial), string(DocStatusCompleted),
		},
	}
	for rows.Next() {
		var year string
		if err := rows.Scan(&year); err != nil {
			return nil, fmt.Errorf("failed to scan filter year: %w", err)
		}
		fv.Years = append(fv.Years, year)
	}
	return fv, rows.Err()
}

// CombinedTranscription concatenates all completed page transcriptions of
// a document in part order, separated by the page break marker. It fails
// if any page of the document is not yet completed.
func (s *Store) CombinedTranscription(ctx context.Context, docID int64) (string, error) {
	query, args, err := s.q.From("pages").
		Select("status", "transcription").
		Where(goqu.Ex{"document_id": docID}).
		Order(goqu.I("part_index").Asc()).
		ToSQL()
	if err != nil {
		return "", fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return "", fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	var parts []string
	for rows.Next() {
		var status, text string
		if err := rows.Scan(&status, &text); err != nil {
			return "", fmt.Errorf("failed to scan page: %w", err)
		}
		if Status(status) != StatusCompleted {
			return "", fmt.Errorf("document %d has pages not yet transcribed", docID)
		}
		parts = append(parts, text)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("document %d has no pages", docID)
	}
	return strings.Join(parts, PageBreakMarker), nil
}

// WriteSummary updates a document's summarization unit.
func (s *Store) WriteSummary(ctx context.Context, docID int64, status Status, text string, meta *ResultMeta) error {
	rec := goqu.Record{
		"summary_status": string(status),
		"summary":        text,
		"summary_meta":   metaJSON(meta),
	}
	query, args, err := s.q.Update("documents").Set(rec).Where(goqu.Ex{"id": docID}).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to write summary for document %d: %w", docID, err)
	}
	return nil
}

// ResetSummaries puts completed and failed summarization units back to
// pending, clearing stale summary text. Submitted units are in flight in
// an external bulk job and are left alone; reconciliation owns those.
// Returns the number of documents touched.
func (s *Store) ResetSummaries(ctx context.Context) (int64, error) {
	rec := goqu.Record{
		"summary_status": string(StatusPending),
		"summary":        "",
		"summary_meta":   nil,
	}
	query, args, err := s.q.Update("documents").Set(rec).
		Where(goqu.Ex{"summary_status": []string{
			string(StatusCompleted), string(StatusFailed),
		}}).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("failed to build reset query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to reset summaries: %w", err)
	}
	return res.RowsAffected()
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var d Document
	var summaryMeta sql.NullString
	var createdAt string
	if err := row.Scan(&d.ID, &d.Date, &d.Label, &d.TranscriptionStatus,
		&d.SummaryStatus, &d.Summary, &summaryMeta, &createdAt, &d.PageCount); err != nil {
		return nil, err
	}
	d.CreatedAt = parseTime(createdAt)
	d.SummaryMeta = metaFromJSON(summaryMeta)
	return &d, nil
}

// metaJSON serializes result metadata for storage, returning nil for nil
// input so the column stays NULL.
func metaJSON(meta *ResultMeta) any {
	if meta == nil {
		return nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return string(b)
}

func metaFromJSON(v sql.NullString) *ResultMeta {
	if !v.Valid || v.String == "" {
		return nil
	}
	var meta ResultMeta
	if err := json.Unmarshal([]byte(v.String), &meta); err != nil {
		return nil
	}
	return &meta
}

// snippet extracts a short context window around the first match of q.
func snippet(text, q string) string {
	const window = 80
	idx := strings.Index(strings.ToLower(text), strings.ToLower(q))
	if idx < 0 {
		idx = 0
	}
	start := idx - window
	if start < 0 {
		start = 0
	}
	end := idx + len(q) + window
	if end > len(text) {
		end = len(text)
	}
	out := strings.TrimSpace(text[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(text) {
		out = out + "…"
	}
	return out
}
