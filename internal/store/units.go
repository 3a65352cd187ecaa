package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
)

// FetchPending returns up to limit pending units of the given kind,
// ordered by parent document date then part index so documents are
// processed in reading order and resumption is predictable.
func (s *Store) FetchPending(ctx context.Context, kind Kind, limit int) ([]Unit, error) {
	switch kind {
	case KindTranscription:
		return s.fetchPendingPages(ctx, limit)
	case KindSummarization:
		return s.fetchPendingSummaries(ctx, limit)
	default:
		return nil, fmt.Errorf("unknown unit kind: %s", kind)
	}
}

func (s *Store) fetchPendingPages(ctx context.Context, limit int) ([]Unit, error) {
	ds := s.q.From(goqu.T("pages").As("p")).
		Join(goqu.T("documents").As("d"), goqu.On(goqu.I("p.document_id").Eq(goqu.I("d.id")))).
		Select(goqu.I("p.id"), goqu.I("d.id"), goqu.I("d.date"),
			goqu.I("p.part_index"), goqu.I("p.source_path")).
		Where(goqu.I("p.status").Eq(string(StatusPending))).
		Order(goqu.I("d.date").Asc(), goqu.I("p.part_index").Asc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending pages: %w", err)
	}
	defer rows.Close()

	units := []Unit{}
	for rows.Next() {
		u := Unit{Kind: KindTranscription}
		if err := rows.Scan(&u.ID, &u.DocumentID, &u.DocumentDate, &u.PartIndex, &u.SourcePath); err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// fetchPendingSummaries returns documents ready to summarize: all pages
// transcribed, summary still pending.
func (s *Store) fetchPendingSummaries(ctx context.Context, limit int) ([]Unit, error) {
	ds := s.q.From(goqu.T("documents").As("d")).
		Select(goqu.I("d.id"), goqu.I("d.date")).
		Where(
			goqu.I("d.transcription_status").Eq(string(DocStatusCompleted)),
			goqu.I("d.summary_status").Eq(string(StatusPending)),
		).
		Order(goqu.I("d.date").Asc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending summaries: %w", err)
	}
	defer rows.Close()

	units := []Unit{}
	for rows.Next() {
		u := Unit{Kind: KindSummarization}
		if err := rows.Scan(&u.ID, &u.DocumentDate); err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		u.DocumentID = u.ID
		units = append(units, u)
	}
	return units, rows.Err()
}

// WriteResult applies a unit result of either kind.
func (s *Store) WriteResult(ctx context.Context, kind Kind, unitID int64, status Status, text string, meta *ResultMeta) error {
	switch kind {
	case KindTranscription:
		return s.WritePage(ctx, unitID, status, text, meta)
	case KindSummarization:
		return s.WriteSummary(ctx, unitID, status, text, meta)
	default:
		return fmt.Errorf("unknown unit kind: %s", kind)
	}
}

// ResetUnits sets every listed unit back to pending, clearing any stale
// result and metadata, so the units re-enter the pipeline.
func (s *Store) ResetUnits(ctx context.Context, kind Kind, unitIDs []int64) error {
	if len(unitIDs) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.setUnitStatusTx(ctx, tx, kind, unitIDs, StatusPending, true)
	})
}

// setUnitStatusTx updates the status of a set of units inside tx. When
// clearResult is set, result text and metadata are wiped as well. Page
// writes recompute each affected document's aggregate status.
func (s *Store) setUnitStatusTx(ctx context.Context, tx *sql.Tx, kind Kind, unitIDs []int64, status Status, clearResult bool) error {
	if len(unitIDs) == 0 {
		return nil
	}

	ids := make([]any, len(unitIDs))
	for i, id := range unitIDs {
		ids[i] = id
	}

	switch kind {
	case KindTranscription:
		rec := goqu.Record{"status": string(status), "updated_at": now()}
		if clearResult {
			rec["transcription"] = ""
			rec["meta"] = nil
		}
		query, args, err := s.q.Update("pages").Set(rec).
			Where(goqu.I("id").In(ids...)).ToSQL()
		if err != nil {
			return fmt.Errorf("failed to build update query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update pages: %w", err)
		}

		docIDs, err := documentIDsForPagesTx(ctx, tx, ids)
		if err != nil {
			return err
		}
		for _, docID := range docIDs {
			if err := s.recomputeDocStatusTx(ctx, tx, docID); err != nil {
				return err
			}
		}
		return nil

	case KindSummarization:
		rec := goqu.Record{"summary_status": string(status)}
		if clearResult {
			rec["summary"] = ""
			rec["summary_meta"] = nil
		}
		query, args, err := s.q.Update("documents").Set(rec).
			Where(goqu.I("id").In(ids...)).ToSQL()
		if err != nil {
			return fmt.Errorf("failed to build update query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update documents: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unknown unit kind: %s", kind)
	}
}

func documentIDsForPagesTx(ctx context.Context, tx *sql.Tx, pageIDs []any) ([]int64, error) {
	query, args, err := goqu.Dialect("sqlite3").From("pages").
		Select(goqu.DISTINCT("document_id")).
		Where(goqu.I("id").In(pageIDs...)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents for pages: %w", err)
	}
	defer rows.Close()

	var docIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		docIDs = append(docIDs, id)
	}
	return docIDs, rows.Err()
}
