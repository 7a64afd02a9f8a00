package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"gazeta/internal/model"
)

// CreateCrawlJob inserts a new crawl job row in the running state.
func (s *Store) CreateCrawlJob(ctx context.Context, id uuid.UUID, jobType string, totalCities int, dateRange model.DateRange, platformFilter string, metadata any) (CrawlJob, error) {
	start, err := time.Parse("2006-01-02", dateRange.Start)
	if err != nil {
		return CrawlJob{}, err
	}
	end, err := time.Parse("2006-01-02", dateRange.End)
	if err != nil {
		return CrawlJob{}, err
	}

	var meta pqtype.NullRawMessage
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return CrawlJob{}, err
		}
		meta = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}

	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO crawl_jobs (id, job_type, status, total_cities, start_date, end_date, platform_filter, metadata, started_at)
		VALUES ($1, $2, 'running', $3, $4, $5, $6, $7, now())
		RETURNING id, job_type, status, total_cities, completed_cities, failed_cities,
		          start_date, end_date, platform_filter, metadata, created_at, started_at, completed_at`,
		id, jobType, totalCities, start, end, nullString(platformFilter), meta)
	return scanCrawlJob(row)
}

// GetCrawlJob fetches one crawl job row by id.
func (s *Store) GetCrawlJob(ctx context.Context, id uuid.UUID) (CrawlJob, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, job_type, status, total_cities, completed_cities, failed_cities,
		       start_date, end_date, platform_filter, metadata, created_at, started_at, completed_at
		FROM crawl_jobs WHERE id = $1`, id)
	return scanCrawlJob(row)
}

// RecordCityOutcome bumps the completed or failed city counter on the
// parent crawl job after one city finishes crawling.
func (s *Store) RecordCityOutcome(ctx context.Context, id uuid.UUID, failed bool) error {
	col := "completed_cities"
	if failed {
		col = "failed_cities"
	}
	_, err := s.DB.ExecContext(ctx,
		`UPDATE crawl_jobs SET `+col+` = `+col+` + 1 WHERE id = $1`, id)
	return err
}

// FinishCrawlJobIfDone flips a running crawl job to its terminal state
// once every city has been accounted for. The conditional UPDATE makes
// the transition idempotent under concurrent batch completions: only
// one worker observes rows-affected = 1.
func (s *Store) FinishCrawlJobIfDone(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE crawl_jobs
		SET status = CASE WHEN completed_cities = 0 THEN 'failed' ELSE 'completed' END,
		    completed_at = now()
		WHERE id = $1
		  AND status = 'running'
		  AND completed_cities + failed_cities >= total_cities`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanCrawlJob(row scanner) (CrawlJob, error) {
	var j CrawlJob
	err := row.Scan(&j.ID, &j.JobType, &j.Status, &j.TotalCities, &j.CompletedCities, &j.FailedCities,
		&j.StartDate, &j.EndDate, &j.PlatformFilter, &j.Metadata, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	return j, err
}
