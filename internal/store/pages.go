package store

import (
	"context"
	"database/sql"
	"fmt"

	"wiki-data-pipeline/internal/model"
)

// ReplacePages swaps the stored rows of an artifact for batch in a single
// transaction. Readers see either the old rows or the new ones.
func (s *Store) ReplacePages(ctx context.Context, artifact, runID string, batch model.Batch) error {
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE artifact = ?`, artifact); err != nil {
			return fmt.Errorf("clear artifact %s: %w", artifact, err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO pages (artifact, position, run_id, pageid, title, ns, processed_at, sequence, source)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, rec := range batch.Records {
			var ns sql.NullInt64
			if rec.Namespace != nil {
				ns = sql.NullInt64{Int64: *rec.Namespace, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx,
				artifact, i, runID, rec.PageID, rec.Title, ns,
				rec.Value(model.ColumnProcessedAt), rec.Sequence, rec.Source,
			); err != nil {
				return fmt.Errorf("insert page %d: %w", rec.PageID, err)
			}
		}
		return tx.Commit()
	})
}

// ListPages returns the stored rows of an artifact in batch order.
func (s *Store) ListPages(ctx context.Context, artifact string) ([]model.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pageid, title, ns, processed_at, sequence, source
		FROM pages WHERE artifact = ? ORDER BY position`, artifact)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	records := []model.Record{}
	for rows.Next() {
		var (
			rec       model.Record
			ns        sql.NullInt64
			processed string
		)
		if err := rows.Scan(&rec.PageID, &rec.Title, &ns, &processed, &rec.Sequence, &rec.Source); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		if ns.Valid {
			value := ns.Int64
			rec.Namespace = &value
		}
		if rec.ProcessedAt, err = parseTime(processed); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
