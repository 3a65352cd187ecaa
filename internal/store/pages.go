package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
)

// CreatePage inserts a page row if no page with the given source path
// exists yet, returning the page id either way. Re-running ingestion is
// therefore a no-op for already-known files. A known source path that
// belongs to a different document or part is an error.
func (s *Store) CreatePage(ctx context.Context, docID int64, partIndex int, sourcePath string, pdfPages int) (int64, error) {
	existing, err := s.getPageID(ctx, goqu.Ex{"source_path": sourcePath})
	if err == nil {
		page, err := s.GetPage(ctx, existing)
		if err != nil {
			return 0, err
		}
		if page.DocumentID != docID || page.PartIndex != partIndex {
			return 0, fmt.Errorf("page %s already registered as document %d part %d",
				sourcePath, page.DocumentID, page.PartIndex)
		}
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	ts := now()
	query, args, err := s.q.Insert("pages").Rows(goqu.Record{
		"document_id": docID,
		"part_index":  partIndex,
		"source_path": sourcePath,
		"pdf_pages":   pdfPages,
		"created_at":  ts,
		"updated_at":  ts,
	}).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("failed to build insert query: %w", err)
	}

	var id int64
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to create page %s: %w", sourcePath, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
		return s.recomputeDocStatusTx(ctx, tx, docID)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// PageIDBySource looks up a page by its source file path.
func (s *Store) PageIDBySource(ctx context.Context, sourcePath string) (int64, error) {
	return s.getPageID(ctx, goqu.Ex{"source_path": sourcePath})
}

func (s *Store) getPageID(ctx context.Context, where goqu.Ex) (int64, error) {
	query, args, err := s.q.From("pages").Select("id").Where(where).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to query page: %w", err)
	}
	return id, nil
}

// GetPage returns a page by id.
func (s *Store) GetPage(ctx context.Context, id int64) (*Page, error) {
	query, args, err := s.q.From("pages").
		Select("id", "document_id", "part_index", "source_path", "pdf_pages",
			"status", "transcription", "meta", "created_at", "updated_at").
		Where(goqu.Ex{"id": id}).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var p Page
	var meta sql.NullString
	var createdAt, updatedAt string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&p.ID, &p.DocumentID, &p.PartIndex, &p.SourcePath, &p.PDFPages,
		&p.Status, &p.Transcription, &meta, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get page: %w", err)
	}
	p.Meta = metaFromJSON(meta)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// DocumentPages returns all pages of a document in part order.
func (s *Store) DocumentPages(ctx context.Context, docID int64) ([]Page, error) {
	query, args, err := s.q.From("pages").
		Select("id", "document_id", "part_index", "source_path", "pdf_pages",
			"status", "transcription", "meta", "created_at", "updated_at").
		Where(goqu.Ex{"document_id": docID}).
		Order(goqu.I("part_index").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	pages := []Page{}
	for rows.Next() {
		var p Page
		var meta sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.PartIndex, &p.SourcePath, &p.PDFPages,
			&p.Status, &p.Transcription, &meta, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		p.Meta = metaFromJSON(meta)
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// WritePage updates a page's status, result and metadata. The parent
// document's aggregate transcription status is recomputed in the same
// transaction so it can never drift from its pages.
func (s *Store) WritePage(ctx context.Context, pageID int64, status Status, text string, meta *ResultMeta) error {
	query, args, err := s.q.Update("pages").Set(goqu.Record{
		"status":        string(status),
		"transcription": text,
		"meta":          metaJSON(meta),
		"updated_at":    now(),
	}).Where(goqu.Ex{"id": pageID}).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to write page %d: %w", pageID, err)
		}

		var docID int64
		if err := tx.QueryRowContext(ctx,
			"SELECT document_id FROM pages WHERE id = ?", pageID).Scan(&docID); err != nil {
			return fmt.Errorf("failed to resolve page %d document: %w", pageID, err)
		}
		return s.recomputeDocStatusTx(ctx, tx, docID)
	})
}

// recomputeDocStatusTx recomputes a document's aggregate transcription
// status from its pages within the given transaction.
func (s *Store) recomputeDocStatusTx(ctx context.Context, tx *sql.Tx, docID int64) error {
	var total, completed int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		 FROM pages WHERE document_id = ?`,
		string(StatusCompleted), docID).Scan(&total, &completed)
	if err != nil {
		return fmt.Errorf("failed to count pages for document %d: %w", docID, err)
	}

	status := DocStatusPending
	switch {
	case total > 0 && completed == total:
		status = DocStatusCompleted
	case completed > 0:
		status = DocStatusPartial
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE documents SET transcription_status = ? WHERE id = ?",
		string(status), docID); err != nil {
		return fmt.Errorf("failed to update document %d status: %w", docID, err)
	}
	return nil
}
