package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/leochiu-a/chrome-ssr-inspector/dbopen"
	"github.com/leochiu-a/chrome-ssr-inspector/ssrwatch/mutation"
)

// InsertReport persists a classification report. The verdict list is stored
// as a JSON column; it is written for audit and export, never read back to
// drive classification. Writes go through dbopen.RunTx: the batch callback
// sink and report generation can hit the database concurrently, and SQLITE_BUSY
// must be retried, not surfaced.
func (s *Store) InsertReport(ctx context.Context, r *mutation.Report) error {
	verdicts, err := json.Marshal(r.Verdicts)
	if err != nil {
		return fmt.Errorf("store: marshal verdicts: %w", err)
	}
	err = dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reports (id, page_id, page_url, phase, server_count, client_count, total_count, verdicts, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.PageID, r.PageURL, r.Phase,
			r.ServerCount, r.ClientCount, r.TotalCount,
			string(verdicts), r.Timestamp,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: insert report: %w", err)
	}
	return nil
}

// RecordBatch persists a mutation batch summary (not the raw records) so
// operators can trace observation activity per page.
func (s *Store) RecordBatch(ctx context.Context, b *mutation.Batch) error {
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO batches (id, page_id, page_url, seq, records, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			b.ID, b.PageID, b.PageURL, b.Seq, len(b.Records), b.Timestamp,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: record batch: %w", err)
	}
	return nil
}

// LatestReport returns the most recent report for a page, or nil when the
// page has never been reported on.
func (s *Store) LatestReport(ctx context.Context, pageID string) (*mutation.Report, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, page_id, page_url, phase, server_count, client_count, total_count, verdicts, created_at
		FROM reports WHERE page_id = ?
		ORDER BY created_at DESC LIMIT 1`, pageID)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// ListReports returns up to limit reports for a page, newest first.
func (s *Store) ListReports(ctx context.Context, pageID string, limit int) ([]*mutation.Report, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, page_id, page_url, phase, server_count, client_count, total_count, verdicts, created_at
		FROM reports WHERE page_id = ?
		ORDER BY created_at DESC LIMIT ?`, pageID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list reports: %w", err)
	}
	defer rows.Close()

	var out []*mutation.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(sc scanner) (*mutation.Report, error) {
	var r mutation.Report
	var verdicts string
	err := sc.Scan(&r.ID, &r.PageID, &r.PageURL, &r.Phase,
		&r.ServerCount, &r.ClientCount, &r.TotalCount,
		&verdicts, &r.Timestamp)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(verdicts), &r.Verdicts); err != nil {
		return nil, fmt.Errorf("store: unmarshal verdicts: %w", err)
	}
	return &r, nil
}
