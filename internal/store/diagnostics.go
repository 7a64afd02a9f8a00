package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// InsertErrorLog appends one diagnostic row. Severity is one of
// info|warning|error|critical.
func (s *Store) InsertErrorLog(ctx context.Context, worker, operation, severity, message string, context_ any) error {
	var meta pqtype.NullRawMessage
	if context_ != nil {
		raw, err := json.Marshal(context_)
		if err == nil {
			meta = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
		}
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO error_logs (id, worker, operation, severity, message, context)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), worker, operation, severity, message, meta)
	return err
}

// ListUnresolvedErrors returns open diagnostic rows, newest first.
func (s *Store) ListUnresolvedErrors(ctx context.Context, limit int) ([]ErrorLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, worker, operation, severity, message, context, resolved, created_at
		FROM error_logs WHERE NOT resolved
		ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ErrorLog
	for rows.Next() {
		var e ErrorLog
		if err := rows.Scan(&e.ID, &e.Worker, &e.Operation, &e.Severity, &e.Message,
			&e.Context, &e.Resolved, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordTelemetry appends one pipeline step event for a city.
func (s *Store) RecordTelemetry(ctx context.Context, crawlJobID, territoryID, spiderID, step, status string, detail any) error {
	var meta pqtype.NullRawMessage
	if detail != nil {
		raw, err := json.Marshal(detail)
		if err == nil {
			meta = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
		}
	}
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO crawl_telemetry (id, crawl_job_id, territory_id, spider_id, step, status, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), nullString(crawlJobID), territoryID, nullString(spiderID), step, status, meta)
	return err
}

// CountProcessedCities counts crawl_end events for a crawl job, which
// is how batch completion decides whether every city has reported in.
func (s *Store) CountProcessedCities(ctx context.Context, crawlJobID string) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx, `
		SELECT count(*) FROM crawl_telemetry
		WHERE crawl_job_id = $1 AND step = 'crawl_end'`, crawlJobID).Scan(&n)
	return n, err
}

// DeleteResolvedErrorsBefore removes resolved diagnostics older than
// the cutoff.
func (s *Store) DeleteResolvedErrorsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM error_logs WHERE resolved AND created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteTelemetryBefore removes step events older than the cutoff.
func (s *Store) DeleteTelemetryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM crawl_telemetry WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
