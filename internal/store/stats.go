package store

import (
	"context"
	"fmt"
)

// StatusCounts maps a status value to the number of units in it.
type StatusCounts map[string]int

// Stats summarizes the pipeline's durable state.
type Stats struct {
	Documents  int          `json:"documents"`
	Pages      StatusCounts `json:"pages"`
	Aggregates StatusCounts `json:"document_transcription"`
	Summaries  StatusCounts `json:"summaries"`
	BatchJobs  StatusCounts `json:"batch_jobs"`
}

// UnitStats returns counts by status for one unit kind.
func (s *Store) UnitStats(ctx context.Context, kind Kind) (StatusCounts, error) {
	switch kind {
	case KindTranscription:
		return s.countBy(ctx, "pages", "status")
	case KindSummarization:
		return s.countBy(ctx, "documents", "summary_status")
	default:
		return nil, fmt.Errorf("unknown unit kind: %s", kind)
	}
}

// GetStats returns the full pipeline summary.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents").Scan(&stats.Documents); err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}

	var err error
	if stats.Pages, err = s.countBy(ctx, "pages", "status"); err != nil {
		return nil, err
	}
	if stats.Aggregates, err = s.countBy(ctx, "documents", "transcription_status"); err != nil {
		return nil, err
	}
	if stats.Summaries, err = s.countBy(ctx, "documents", "summary_status"); err != nil {
		return nil, err
	}
	if stats.BatchJobs, err = s.countBy(ctx, "batch_jobs", "status"); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *Store) countBy(ctx context.Context, table, column string) (StatusCounts, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s, COUNT(*) FROM %s GROUP BY %s", column, table, column))
	if err != nil {
		return nil, fmt.Errorf("failed to count %s by %s: %w", table, column, err)
	}
	defer rows.Close()

	counts := StatusCounts{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
